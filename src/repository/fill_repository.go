package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradetrace/src/database"
	"tradetrace/src/model"
)

// FillRepository handles execution reports. Fills accumulate append-only as
// the brokerage reports them.
type FillRepository struct {
	db *gorm.DB
}

func NewFillRepository() *FillRepository {
	return &FillRepository{db: database.DB}
}

func (r *FillRepository) WithDB(db *gorm.DB) *FillRepository {
	return &FillRepository{db: db}
}

func (r *FillRepository) Append(ctx context.Context, fills ...model.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(&fills).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "FillRepository",
			"op":    "Append",
			"count": len(fills),
		}).WithError(err).Error("Failed to append fills")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "FillRepository",
		"op":       "Append",
		"trace_id": fills[0].TraceID,
		"count":    len(fills),
	}).Debug("Fills appended")

	return nil
}

// ListByTrace returns a trace's fills oldest first.
func (r *FillRepository) ListByTrace(ctx context.Context, traceID string) ([]model.Fill, error) {
	var fills []model.Fill
	err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("fill_time ASC, id ASC").
		Find(&fills).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "FillRepository",
			"op":       "ListByTrace",
			"trace_id": traceID,
		}).WithError(err).Error("Failed to fetch fills")
		return nil, err
	}
	return fills, nil
}
