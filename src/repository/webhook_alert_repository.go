package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradetrace/src/database"
	"tradetrace/src/model"
)

// WebhookAlertRepository handles raw ingestion records.
type WebhookAlertRepository struct {
	db *gorm.DB
}

func NewWebhookAlertRepository() *WebhookAlertRepository {
	return &WebhookAlertRepository{db: database.DB}
}

func (r *WebhookAlertRepository) WithDB(db *gorm.DB) *WebhookAlertRepository {
	return &WebhookAlertRepository{db: db}
}

func (r *WebhookAlertRepository) Create(ctx context.Context, alert *model.WebhookAlert) error {
	if alert.ReceivedAt.IsZero() {
		alert.ReceivedAt = model.NewNanoTime(time.Now().UTC())
	}
	if alert.Status == "" {
		alert.Status = model.WebhookReceived
	}

	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookAlertRepository",
			"op":       "Create",
			"alert_id": alert.AlertID,
		}).WithError(err).Error("Failed to create webhook alert")
		return err
	}
	return nil
}

// List returns all alerts newest first.
func (r *WebhookAlertRepository) List(ctx context.Context) ([]model.WebhookAlert, error) {
	var alerts []model.WebhookAlert
	err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Find(&alerts).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "WebhookAlertRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to fetch webhook alerts")
		return nil, err
	}
	return alerts, nil
}

// FindByID fetches a single alert. Returns (nil, nil) if not found.
func (r *WebhookAlertRepository) FindByID(ctx context.Context, alertID string) (*model.WebhookAlert, error) {
	var alert model.WebhookAlert
	err := r.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookAlertRepository",
			"op":       "FindByID",
			"alert_id": alertID,
		}).WithError(err).Error("Failed to fetch webhook alert")
		return nil, err
	}
	return &alert, nil
}

// MarkProcessed transitions the alert to processed. The transition never
// reverts.
func (r *WebhookAlertRepository) MarkProcessed(ctx context.Context, alertID string) error {
	return r.setStatus(ctx, alertID, model.WebhookProcessed, "")
}

// MarkError transitions the alert to error with the validation message.
func (r *WebhookAlertRepository) MarkError(ctx context.Context, alertID, message string) error {
	return r.setStatus(ctx, alertID, model.WebhookError, message)
}

func (r *WebhookAlertRepository) setStatus(ctx context.Context, alertID string, status model.WebhookStatus, message string) error {
	err := r.db.WithContext(ctx).Model(&model.WebhookAlert{}).
		Where("alert_id = ? AND status = ?", alertID, model.WebhookReceived).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": message,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WebhookAlertRepository",
			"op":       "setStatus",
			"alert_id": alertID,
			"status":   status,
		}).WithError(err).Error("Failed to update webhook alert status")
		return err
	}
	return nil
}
