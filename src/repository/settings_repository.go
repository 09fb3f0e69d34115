package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradetrace/src/database"
	"tradetrace/src/model"
)

// SettingsRepository handles the singleton settings row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{db: database.DB}
}

func (r *SettingsRepository) WithDB(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the saved settings, or the defaults when nothing has been
// saved yet. Absence is not an error.
func (r *SettingsRepository) Get(ctx context.Context) (model.Settings, error) {
	var settings model.Settings
	err := r.db.WithContext(ctx).
		Where("id = ?", 1).
		First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.DefaultSettings(), nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Get",
		}).WithError(err).Error("Failed to fetch settings")
		return model.Settings{}, err
	}
	return settings, nil
}

// Save upserts the singleton row. This is the only write path for settings.
func (r *SettingsRepository) Save(ctx context.Context, settings model.Settings) error {
	settings.ID = 1

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&settings).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SettingsRepository",
			"op":   "Save",
		}).WithError(err).Error("Failed to save settings")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SettingsRepository",
		"op":        "Save",
		"test_mode": settings.PipelineTestMode,
	}).Info("Settings saved")

	return nil
}
