package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradetrace/src/model"
)

type settingsView interface {
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error
}

func GetSettingsHandler(view settingsView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := view.GetSettings(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to get settings")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, settings)
	}
}

// SaveSettingsHandler is the single write path for settings.
func SaveSettingsHandler(view settingsView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings model.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "invalid settings payload", http.StatusBadRequest)
			return
		}
		settings.RiskMethod = model.ParseRiskMethod(string(settings.RiskMethod))

		if err := view.SaveSettings(r.Context(), settings); err != nil {
			logger.WithError(err).Error("failed to save settings")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
