package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradetrace/src/database"
	"tradetrace/src/model"
)

// TraceEventRepository handles the append-only lineage log. Events are never
// updated or deleted once written.
type TraceEventRepository struct {
	db *gorm.DB
}

func NewTraceEventRepository() *TraceEventRepository {
	return &TraceEventRepository{db: database.DB}
}

func (r *TraceEventRepository) WithDB(db *gorm.DB) *TraceEventRepository {
	return &TraceEventRepository{db: db}
}

// Append writes one event. A zero EventTime is stamped with now.
func (r *TraceEventRepository) Append(ctx context.Context, event *model.TraceEvent) error {
	if event.EventTime.IsZero() {
		event.EventTime = model.NewNanoTime(time.Now().UTC())
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TraceEventRepository",
			"op":         "Append",
			"trace_id":   event.TraceID,
			"event_type": event.EventType,
		}).WithError(err).Error("Failed to append trace event")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "TraceEventRepository",
		"op":         "Append",
		"trace_id":   event.TraceID,
		"event_type": event.EventType,
		"source":     event.Source,
	}).Debug("Trace event appended")

	return nil
}

// ListByTrace returns a trace's events oldest first. The id tiebreak keeps
// events written in the same instant in write order.
func (r *TraceEventRepository) ListByTrace(ctx context.Context, traceID string) ([]model.TraceEvent, error) {
	var events []model.TraceEvent
	err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("event_time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceEventRepository",
			"op":       "ListByTrace",
			"trace_id": traceID,
		}).WithError(err).Error("Failed to fetch trace events")
		return nil, err
	}
	return events, nil
}
