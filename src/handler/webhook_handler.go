package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradetrace/src/controller"
	"tradetrace/src/model"
)

type webhookReceiver interface {
	ReceiveWebhook(ctx context.Context, input *model.TraceInput, traceID string) (model.ReceiveWebhookResponse, error)
	ReceiveGhostCallback(ctx context.Context, payloadJSON string) error
}

// ReceiveWebhookHandler ingests a TradingView alert. The response always
// carries the ok flag; validation failures are recorded, not retried.
func ReceiveWebhookHandler(view webhookReceiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var input *model.TraceInput
		if len(body) > 0 {
			var parsed model.TraceInput
			if err := json.Unmarshal(body, &parsed); err != nil {
				logger.WithError(err).Warn("webhook payload is not valid JSON")
			} else {
				input = &parsed
			}
		}

		traceID := r.URL.Query().Get("trace_id")

		resp, err := view.ReceiveWebhook(r.Context(), input, traceID)
		if err != nil {
			logger.WithError(err).Error("failed to ingest webhook")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, resp)
	}
}

// GhostCallbackHandler records an asynchronous relay notification.
func GhostCallbackHandler(view webhookReceiver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := view.ReceiveGhostCallback(r.Context(), string(body)); err != nil {
			if errors.Is(err, controller.ErrGhostCallbackInvalid) {
				logger.WithError(err).Warn("rejected ghost callback")
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.WithError(err).Error("failed to record ghost callback")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
