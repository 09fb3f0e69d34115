package ghost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/model"
)

// ErrForwardInFlight is returned when a forward is requested for a trace
// that already has one outstanding. The guard is advisory single-writer
// intent, not a cross-process lock.
var ErrForwardInFlight = errors.New("forward already in flight for trace")

// sentinelURL is the placeholder meaning "relay not configured". Skipping it
// is not a rejection; the trace status stays untouched.
const sentinelURL = "dummy://"

// Committer is the durable commit surface for forward outcomes. Production
// wires the cache view so every commit also invalidates the right keys.
type Committer interface {
	UpdateGhostStatus(ctx context.Context, traceID string, status model.GhostStatus, responseJSON string, errMsg *string) error
	RecordForwardAttempt(ctx context.Context, traceID string) error
}

// Outcome describes how one forward attempt resolved.
type Outcome struct {
	Skipped      bool
	Status       model.GhostStatus
	ResponseBody string
	ErrorMessage string
}

// Forwarder performs the single outbound relay call per trace and commits
// the terminal ghost status. It never retries: a retry, if any, is a
// deliberate re-invocation by the caller.
type Forwarder struct {
	http      *resty.Client
	committer Committer
	inflight  sync.Map
}

func NewForwarder(committer Committer) *Forwarder {
	config := GetConfig()
	return NewForwarderWithTimeout(committer, config.ForwardTimeout)
}

func NewForwarderWithTimeout(committer Committer, timeout time.Duration) *Forwarder {
	return &Forwarder{
		// Retry stays at zero: exactly one request per Forward call.
		http:      resty.New().SetTimeout(timeout),
		committer: committer,
	}
}

// Forward merges trace_id into the payload, issues exactly one POST to the
// relay, and commits the outcome. Once dispatched it always runs to
// completion, even if the caller goes away: a half-sent forward must still
// be resolved.
func (f *Forwarder) Forward(
	ctx context.Context,
	traceID string,
	payload map[string]interface{},
	relayURL string,
) (Outcome, error) {

	if !Configured(relayURL) {
		logger.WithFields(map[string]interface{}{
			"component": "ghost",
			"trace_id":  traceID,
		}).Debug("Relay not configured, skipping forward")
		return Outcome{Skipped: true}, nil
	}

	if _, loaded := f.inflight.LoadOrStore(traceID, struct{}{}); loaded {
		return Outcome{}, fmt.Errorf("%w: %s", ErrForwardInFlight, traceID)
	}
	defer f.inflight.Delete(traceID)

	// Detach from caller cancellation before dispatch.
	ctx = context.WithoutCancel(ctx)

	if err := f.committer.RecordForwardAttempt(ctx, traceID); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "ghost",
			"trace_id":  traceID,
		}).WithError(err).Warn("Failed to record forward attempt event")
	}

	forwardPayload := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		forwardPayload[k] = v
	}
	forwardPayload["trace_id"] = traceID

	logger.WithFields(map[string]interface{}{
		"component": "ghost",
		"trace_id":  traceID,
		"relay_url": relayURL,
	}).Info("Forwarding trace to relay")

	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(forwardPayload).
		Post(relayURL)

	if err != nil {
		// Transport failure: no response at all. The exception message is
		// the error evidence and an empty object stands in for the body.
		msg := err.Error()
		outcome := Outcome{
			Status:       model.GhostRejected,
			ResponseBody: "{}",
			ErrorMessage: msg,
		}
		if commitErr := f.committer.UpdateGhostStatus(ctx, traceID, model.GhostRejected, "{}", &msg); commitErr != nil {
			return outcome, commitErr
		}
		logger.WithFields(map[string]interface{}{
			"component": "ghost",
			"trace_id":  traceID,
		}).WithError(err).Error("Forward transport failure")
		return outcome, nil
	}

	body := resp.String()

	if resp.IsError() {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), body)
		outcome := Outcome{
			Status:       model.GhostRejected,
			ResponseBody: body,
			ErrorMessage: msg,
		}
		if commitErr := f.committer.UpdateGhostStatus(ctx, traceID, model.GhostRejected, body, &msg); commitErr != nil {
			return outcome, commitErr
		}
		logger.WithFields(map[string]interface{}{
			"component":   "ghost",
			"trace_id":    traceID,
			"status_code": resp.StatusCode(),
		}).Warn("Relay rejected forward")
		return outcome, nil
	}

	outcome := Outcome{
		Status:       model.GhostAccepted,
		ResponseBody: body,
	}
	if commitErr := f.committer.UpdateGhostStatus(ctx, traceID, model.GhostAccepted, body, nil); commitErr != nil {
		return outcome, commitErr
	}

	logger.WithFields(map[string]interface{}{
		"component": "ghost",
		"trace_id":  traceID,
	}).Info("Relay accepted forward")

	return outcome, nil
}

// DryRun records an attempt and commits accepted without any network call.
// Used when the pipeline runs in test mode.
func (f *Forwarder) DryRun(ctx context.Context, traceID string) (Outcome, error) {
	if _, loaded := f.inflight.LoadOrStore(traceID, struct{}{}); loaded {
		return Outcome{}, fmt.Errorf("%w: %s", ErrForwardInFlight, traceID)
	}
	defer f.inflight.Delete(traceID)

	ctx = context.WithoutCancel(ctx)

	if err := f.committer.RecordForwardAttempt(ctx, traceID); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "ghost",
			"trace_id":  traceID,
		}).WithError(err).Warn("Failed to record forward attempt event")
	}

	body := `{"test_mode":true}`
	outcome := Outcome{Status: model.GhostAccepted, ResponseBody: body}
	if err := f.committer.UpdateGhostStatus(ctx, traceID, model.GhostAccepted, body, nil); err != nil {
		return outcome, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "ghost",
		"trace_id":  traceID,
	}).Info("Pipeline test mode, forward committed without dispatch")

	return outcome, nil
}

// Configured reports whether the relay URL points at a real endpoint.
func Configured(relayURL string) bool {
	trimmed := strings.TrimSpace(relayURL)
	return trimmed != "" && trimmed != sentinelURL
}
