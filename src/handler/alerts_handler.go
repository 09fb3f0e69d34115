package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/model"
)

type alertLister interface {
	GetWebhookAlerts(ctx context.Context) ([]model.WebhookAlert, error)
}

type alertFinder interface {
	GetWebhookAlert(ctx context.Context, alertID string) (*model.WebhookAlert, error)
}

// ListAlertsHandler returns the raw ingestion log, newest first.
func ListAlertsHandler(view alertLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := view.GetWebhookAlerts(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list webhook alerts")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, alerts)
	}
}

// GetAlertHandler returns one raw ingestion record by id.
func GetAlertHandler(finder alertFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alertID := chi.URLParam(r, "alertID")

		alert, err := finder.GetWebhookAlert(r.Context(), alertID)
		if err != nil {
			logger.WithError(err).Error("failed to get webhook alert")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if alert == nil {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		writeJSON(w, alert)
	}
}
