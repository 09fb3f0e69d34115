package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/filter"
	"tradetrace/src/metrics"
	"tradetrace/src/model"
	"tradetrace/src/repository"
	"tradetrace/src/tradovate"
)

// ErrTraceNotFound is returned by operations that require an existing trace.
var ErrTraceNotFound = errors.New("trace not found")

// ErrGhostCallbackInvalid marks a callback payload the caller got wrong, as
// opposed to a store failure while recording it.
var ErrGhostCallbackInvalid = errors.New("invalid ghost callback payload")

// Broker is the brokerage poll surface the controller needs.
type Broker interface {
	Executions(ctx context.Context, traceID string) (*tradovate.ExecutionReport, error)
}

// PipelineController implements the pipeline store boundary: ingestion,
// lineage reads, status commits, and brokerage refresh. It is the single
// authority behind the cache layer and the HTTP surface.
type PipelineController struct {
	traces   *repository.TraceRepository
	events   *repository.TraceEventRepository
	fills    *repository.FillRepository
	alerts   *repository.WebhookAlertRepository
	settings *repository.SettingsRepository

	// NewBroker builds the poll client for the current settings. Swappable
	// in tests.
	NewBroker func(model.Settings) Broker
}

func NewPipelineController() *PipelineController {
	return &PipelineController{
		traces:   repository.NewTraceRepository(),
		events:   repository.NewTraceEventRepository(),
		fills:    repository.NewFillRepository(),
		alerts:   repository.NewWebhookAlertRepository(),
		settings: repository.NewSettingsRepository(),
		NewBroker: func(s model.Settings) Broker {
			return tradovate.FromSettings(s)
		},
	}
}

// WithRepositories overrides the repository set, for tests running over a
// mock or sqlite database.
func (c *PipelineController) WithRepositories(
	traces *repository.TraceRepository,
	events *repository.TraceEventRepository,
	fills *repository.FillRepository,
	alerts *repository.WebhookAlertRepository,
	settings *repository.SettingsRepository,
) *PipelineController {
	out := *c
	out.traces = traces
	out.events = events
	out.fills = fills
	out.alerts = alerts
	out.settings = settings
	return &out
}

// ─── Reads ───────────────────────────────────────────────────────────────

func (c *PipelineController) ListTraces(ctx context.Context) ([]model.Trace, error) {
	return c.traces.List(ctx)
}

// FilterTraces lists and evaluates the predicate set in memory. The filter
// engine owns the matching rules; the repository owns the ordering.
func (c *PipelineController) FilterTraces(ctx context.Context, f model.TraceQueryFilters) ([]model.Trace, error) {
	traces, err := c.traces.List(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(traces, f), nil
}

func (c *PipelineController) GetTrace(ctx context.Context, traceID string) (*model.Trace, error) {
	return c.traces.FindByID(ctx, traceID)
}

func (c *PipelineController) GetTraceEvents(ctx context.Context, traceID string) ([]model.TraceEvent, error) {
	return c.events.ListByTrace(ctx, traceID)
}

func (c *PipelineController) GetTraceFills(ctx context.Context, traceID string) ([]model.Fill, error) {
	return c.fills.ListByTrace(ctx, traceID)
}

func (c *PipelineController) GetWebhookAlerts(ctx context.Context) ([]model.WebhookAlert, error) {
	return c.alerts.List(ctx)
}

func (c *PipelineController) GetWebhookAlert(ctx context.Context, alertID string) (*model.WebhookAlert, error) {
	return c.alerts.FindByID(ctx, alertID)
}

func (c *PipelineController) GetSettings(ctx context.Context) (model.Settings, error) {
	return c.settings.Get(ctx)
}

// ─── Mutations ───────────────────────────────────────────────────────────

func (c *PipelineController) SaveSettings(ctx context.Context, settings model.Settings) error {
	return c.settings.Save(ctx, settings)
}

func (c *PipelineController) UpdateGhostStatus(
	ctx context.Context,
	traceID string,
	status model.GhostStatus,
	responseJSON string,
	errMsg *string,
) error {
	return c.traces.UpdateGhostStatus(ctx, traceID, status, responseJSON, errMsg)
}

// RecordForwardAttempt appends the pre-dispatch attempt event. A crash
// between this and the outcome commit leaves a visible attempt with no
// outcome, which is the honest record of what happened.
func (c *PipelineController) RecordForwardAttempt(ctx context.Context, traceID string) error {
	return c.events.Append(ctx, &model.TraceEvent{
		TraceID:   traceID,
		Source:    model.SourceGhost,
		EventType: model.EventGhostForwardAttempt,
	})
}

// ReceiveWebhook ingests one TradingView alert: the raw record is always
// kept, validation failures are recorded and never forwarded, and a valid
// payload becomes a new trace with its alertReceived event.
func (c *PipelineController) ReceiveWebhook(
	ctx context.Context,
	input *model.TraceInput,
	traceID string,
) (model.ReceiveWebhookResponse, error) {

	now := model.NewNanoTime(time.Now().UTC())
	if traceID == "" {
		traceID = uuid.NewString()
	}

	alert := model.WebhookAlert{
		AlertID:    uuid.NewString(),
		Status:     model.WebhookReceived,
		ReceivedAt: now,
	}
	if input != nil {
		alert.Ticker = input.Ticker
		alert.Action = input.Action
		alert.Strategy = input.Strategy
		if raw, err := json.Marshal(input); err == nil {
			alert.RawPayload = string(raw)
		}
	}
	if err := c.alerts.Create(ctx, &alert); err != nil {
		return model.ReceiveWebhookResponse{}, err
	}

	if reason := validateTraceInput(input); reason != "" {
		if err := c.alerts.MarkError(ctx, alert.AlertID, reason); err != nil {
			return model.ReceiveWebhookResponse{}, err
		}
		// No trace row exists for a rejected alert; the event lives under
		// the proposed trace id, which the response returns so the lineage
		// stays reachable through the events read.
		if err := c.events.Append(ctx, &model.TraceEvent{
			TraceID:   traceID,
			Source:    model.SourceTradingView,
			EventType: model.EventValidationError,
			Detail:    reason,
			EventTime: now,
		}); err != nil {
			return model.ReceiveWebhookResponse{}, err
		}

		logger.WithFields(map[string]interface{}{
			"component": "PipelineController",
			"op":        "ReceiveWebhook",
			"alert_id":  alert.AlertID,
			"trace_id":  traceID,
			"reason":    reason,
		}).Warn("Webhook rejected by validation")

		return model.ReceiveWebhookResponse{Ok: false, Error: reason, TraceID: traceID}, nil
	}

	trace := model.Trace{
		TraceID:            traceID,
		Ticker:             input.Ticker,
		Action:             strings.ToLower(input.Action),
		Entry:              input.Entry,
		StopLoss:           input.StopLoss,
		TakeProfit:         input.TakeProfit,
		Strategy:           input.Strategy,
		ParamsSnapshotJSON: input.ParamsSnapshotJSON,
		GhostStatus:        model.GhostReceived,
		TradovateStatus:    model.TradeUnknown,
		AlertReceivedAt:    now,
	}
	if err := c.traces.Create(ctx, &trace); err != nil {
		return model.ReceiveWebhookResponse{}, err
	}

	if err := c.events.Append(ctx, &model.TraceEvent{
		TraceID:   traceID,
		Source:    model.SourceTradingView,
		EventType: model.EventAlertReceived,
		EventTime: now,
	}); err != nil {
		return model.ReceiveWebhookResponse{}, err
	}

	if err := c.alerts.MarkProcessed(ctx, alert.AlertID); err != nil {
		return model.ReceiveWebhookResponse{}, err
	}

	return model.ReceiveWebhookResponse{Ok: true, TraceID: traceID}, nil
}

func validateTraceInput(input *model.TraceInput) string {
	if input == nil {
		return "missing payload"
	}
	if strings.TrimSpace(input.Ticker) == "" {
		return "ticker is required"
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action != model.ActionLong && action != model.ActionShort {
		return fmt.Sprintf("action must be long or short, got %q", input.Action)
	}
	if input.Entry <= 0 {
		return "entry price must be positive"
	}
	return ""
}

// ReceiveGhostCallback records an asynchronous notification from the relay.
// The payload is opaque except for trace_id and an optional status; a status
// only ever upgrades a trace that is still in received.
func (c *PipelineController) ReceiveGhostCallback(ctx context.Context, payloadJSON string) error {
	var payload struct {
		TraceID string `json:"trace_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrGhostCallbackInvalid, err)
	}
	if payload.TraceID == "" {
		return fmt.Errorf("%w: missing trace_id", ErrGhostCallbackInvalid)
	}

	if err := c.events.Append(ctx, &model.TraceEvent{
		TraceID:   payload.TraceID,
		Source:    model.SourceGhost,
		EventType: model.EventGhostCallback,
		Detail:    payloadJSON,
	}); err != nil {
		return err
	}

	if payload.Status == "" {
		return nil
	}
	status := model.ParseGhostStatus(payload.Status)
	if status != model.GhostAccepted && status != model.GhostRejected {
		return nil
	}

	err := c.traces.UpdateGhostStatus(ctx, payload.TraceID, status, payloadJSON, nil)
	if errors.Is(err, repository.ErrGhostTransition) {
		// The forward already committed an outcome; the callback is only
		// corroborating evidence at that point.
		return nil
	}
	return err
}

// fillKey identifies one execution for the refresh diff. The brokerage
// reports the full list every poll, so identity, not position, decides what
// is new.
type fillKey struct {
	timeNS int64
	price  float64
	side   model.FillSide
}

func fillKeyOf(at model.NanoTime, price float64, side model.FillSide) fillKey {
	return fillKey{timeNS: at.UnixNano(), price: price, side: side}
}

// RefreshTrace re-polls the brokerage for fresh fills and status, then
// re-derives and persists the round-turn metrics.
func (c *PipelineController) RefreshTrace(ctx context.Context, traceID string) error {
	trace, err := c.traces.FindByID(ctx, traceID)
	if err != nil {
		return err
	}
	if trace == nil {
		return fmt.Errorf("%w: %s", ErrTraceNotFound, traceID)
	}

	settings, err := c.settings.Get(ctx)
	if err != nil {
		return err
	}

	report, err := c.NewBroker(settings).Executions(ctx, traceID)
	if err != nil {
		return fmt.Errorf("brokerage poll failed: %w", err)
	}

	existing, err := c.fills.ListByTrace(ctx, traceID)
	if err != nil {
		return err
	}

	// The report carries the full execution list. Fills already held are
	// matched by (fill_time, price, side) so a skipped execution never
	// shifts the diff and re-appends the trailing ones on the next poll.
	held := make(map[fillKey]int, len(existing))
	for _, f := range existing {
		held[fillKeyOf(f.FillTime, f.Price, f.Side)]++
	}

	var fresh []model.Fill
	for _, exec := range report.Executions {
		side, ok := model.ParseFillSide(strings.ToLower(exec.Side))
		if !ok {
			logger.WithFields(map[string]interface{}{
				"component": "PipelineController",
				"op":        "RefreshTrace",
				"trace_id":  traceID,
				"side":      exec.Side,
			}).Warn("Skipping execution with unrecognized side")
			continue
		}
		key := fillKeyOf(exec.Time, exec.Price, side)
		if held[key] > 0 {
			held[key]--
			continue
		}
		fresh = append(fresh, model.Fill{
			TraceID:  traceID,
			FillTime: exec.Time,
			Price:    exec.Price,
			Side:     side,
		})
	}
	if err := c.fills.Append(ctx, fresh...); err != nil {
		return err
	}

	status := model.ParseTradeStatus(report.Status)
	if status != trace.TradovateStatus {
		if err := c.traces.UpdateTradeStatus(ctx, traceID, status); err != nil {
			return err
		}
		trace.TradovateStatus = status
	}

	fills, err := c.fills.ListByTrace(ctx, traceID)
	if err != nil {
		return err
	}
	rt := metrics.Derive(*trace, fills)
	return c.traces.SaveMetrics(ctx, traceID, rt.AvgEntry, rt.AvgExit, rt.Pnl, rt.DurationSeconds)
}
