package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradetrace/src/database"
	"tradetrace/src/model"
)

// ErrGhostTransition is returned when a ghost status commit would move the
// trace backwards or re-commit a terminal outcome. The ghost axis only ever
// moves received -> accepted or received -> rejected, exactly once.
var ErrGhostTransition = errors.New("invalid ghost status transition")

// TraceRepository owns trace records and the status/metrics writes that keep
// the trace row and its event log consistent.
type TraceRepository struct {
	db *gorm.DB
}

func NewTraceRepository() *TraceRepository {
	return &TraceRepository{db: database.DB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *TraceRepository) WithDB(db *gorm.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

// List returns all traces ordered newest alert first. The ordering is part
// of the read contract, not a display convenience.
func (r *TraceRepository) List(ctx context.Context) ([]model.Trace, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "TraceRepository",
		"op":   "List",
	}).Debug("Fetching traces")

	var traces []model.Trace
	err := r.db.WithContext(ctx).
		Order("alert_received_at DESC").
		Find(&traces).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TraceRepository",
			"op":   "List",
		}).WithError(err).Error("Failed to fetch traces")
		return nil, err
	}

	return traces, nil
}

// FindByID fetches a single trace. Returns (nil, nil) if not found.
func (r *TraceRepository) FindByID(ctx context.Context, traceID string) (*model.Trace, error) {
	var trace model.Trace
	err := r.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		First(&trace).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // not found is not an error
		}
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceRepository",
			"op":       "FindByID",
			"trace_id": traceID,
		}).WithError(err).Error("Failed to fetch trace")
		return nil, err
	}
	return &trace, nil
}

// Create inserts a new trace record.
func (r *TraceRepository) Create(ctx context.Context, trace *model.Trace) error {
	now := model.NewNanoTime(time.Now().UTC())
	if trace.CreatedAt.IsZero() {
		trace.CreatedAt = now
	}
	trace.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(trace).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceRepository",
			"op":       "Create",
			"trace_id": trace.TraceID,
		}).WithError(err).Error("Failed to create trace")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TraceRepository",
		"op":       "Create",
		"trace_id": trace.TraceID,
		"ticker":   trace.Ticker,
	}).Info("Trace created")

	return nil
}

// UpdateGhostStatus commits a forward outcome: the new ghost status, the raw
// relay response as evidence, and the matching outcome event, all in one
// transaction so the trace row and the event log cannot drift apart.
// errMsg nil clears any prior error.
func (r *TraceRepository) UpdateGhostStatus(
	ctx context.Context,
	traceID string,
	status model.GhostStatus,
	responseJSON string,
	errMsg *string,
) error {

	if status != model.GhostAccepted && status != model.GhostRejected {
		return fmt.Errorf("%w: %q is not a forward outcome", ErrGhostTransition, status)
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TraceRepository",
		"op":       "UpdateGhostStatus",
		"trace_id": traceID,
		"status":   status,
	}).Debug("Committing ghost status")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trace model.Trace
		if err := tx.Where("trace_id = ?", traceID).First(&trace).Error; err != nil {
			return err
		}

		if trace.GhostStatus.Terminal() {
			return fmt.Errorf("%w: trace %s already %s", ErrGhostTransition, traceID, trace.GhostStatus)
		}

		now := model.NewNanoTime(time.Now().UTC())

		ghostErr := ""
		if errMsg != nil {
			ghostErr = *errMsg
		}

		updates := map[string]interface{}{
			"ghost_status":        status,
			"ghost_response_json": responseJSON,
			"ghost_error":         ghostErr,
			"updated_at":          now,
		}
		if err := tx.Model(&model.Trace{}).
			Where("trace_id = ?", traceID).
			Updates(updates).Error; err != nil {
			return err
		}

		eventType := model.EventGhostForwardSuccess
		if status == model.GhostRejected {
			eventType = model.EventGhostForwardFailure
		}
		event := model.TraceEvent{
			TraceID:   traceID,
			Source:    model.SourceGhost,
			EventType: eventType,
			Detail:    ghostErr,
			EventTime: now,
		}
		return tx.Create(&event).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceRepository",
			"op":       "UpdateGhostStatus",
			"trace_id": traceID,
			"status":   status,
		}).WithError(err).Error("Failed to commit ghost status")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TraceRepository",
		"op":       "UpdateGhostStatus",
		"trace_id": traceID,
		"status":   status,
	}).Info("Ghost status committed")

	return nil
}

// UpdateTradeStatus records the brokerage-side status as reported.
func (r *TraceRepository) UpdateTradeStatus(ctx context.Context, traceID string, status model.TradeStatus) error {
	now := model.NewNanoTime(time.Now().UTC())

	err := r.db.WithContext(ctx).Model(&model.Trace{}).
		Where("trace_id = ?", traceID).
		Updates(map[string]interface{}{
			"tradovate_status": status,
			"updated_at":       now,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceRepository",
			"op":       "UpdateTradeStatus",
			"trace_id": traceID,
			"status":   status,
		}).WithError(err).Error("Failed to update trade status")
		return err
	}
	return nil
}

// SaveMetrics persists derived round-turn metrics. Nil fields are written as
// NULL so "not yet known" survives the round trip.
func (r *TraceRepository) SaveMetrics(
	ctx context.Context,
	traceID string,
	avgEntry, avgExit, pnl *float64,
	durationSeconds *int64,
) error {
	now := model.NewNanoTime(time.Now().UTC())

	err := r.db.WithContext(ctx).Model(&model.Trace{}).
		Where("trace_id = ?", traceID).
		Updates(map[string]interface{}{
			"avg_entry":        avgEntry,
			"avg_exit":         avgExit,
			"pnl":              pnl,
			"duration_seconds": durationSeconds,
			"updated_at":       now,
		}).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TraceRepository",
			"op":       "SaveMetrics",
			"trace_id": traceID,
		}).WithError(err).Error("Failed to save trace metrics")
		return err
	}
	return nil
}
