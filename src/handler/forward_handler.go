package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/ghost"
	"tradetrace/src/model"
)

type forwardView interface {
	GetTrace(ctx context.Context, traceID string) (*model.Trace, error)
	GetSettings(ctx context.Context) (model.Settings, error)
}

type traceForwarder interface {
	Forward(ctx context.Context, traceID string, payload map[string]interface{}, relayURL string) (ghost.Outcome, error)
	DryRun(ctx context.Context, traceID string) (ghost.Outcome, error)
}

// ForwardTraceHandler performs the one-shot relay forward for a trace. The
// payload is the trace's parameter snapshot; the relay URL and test-mode
// flag come from settings.
func ForwardTraceHandler(view forwardView, forwarder traceForwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		trace, err := view.GetTrace(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace for forward")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trace == nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}

		settings, err := view.GetSettings(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to get settings for forward")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		payload := map[string]interface{}{}
		if trace.ParamsSnapshotJSON != "" {
			if err := json.Unmarshal([]byte(trace.ParamsSnapshotJSON), &payload); err != nil {
				logger.WithFields(map[string]interface{}{
					"trace_id": traceID,
				}).WithError(err).Warn("params snapshot is not valid JSON, forwarding empty payload")
				payload = map[string]interface{}{}
			}
		}

		var outcome ghost.Outcome
		if settings.PipelineTestMode {
			outcome, err = forwarder.DryRun(r.Context(), traceID)
		} else {
			outcome, err = forwarder.Forward(r.Context(), traceID, payload, settings.GhostWebhookURL)
		}
		if err != nil {
			if errors.Is(err, ghost.ErrForwardInFlight) {
				http.Error(w, "forward already in flight", http.StatusConflict)
				return
			}
			logger.WithError(err).Error("failed to commit forward outcome")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, outcome)
	}
}
