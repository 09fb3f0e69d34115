package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradetrace/src/model"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTraceEventRepositoryAppendStampsEventTime(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&TraceEventRepository{}).WithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "trace_events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	event := &model.TraceEvent{
		TraceID:   "t-1",
		Source:    model.SourceGhost,
		EventType: model.EventGhostForwardAttempt,
	}
	if err := repo.Append(context.Background(), event); err != nil {
		t.Fatalf("unexpected error appending event: %v", err)
	}

	if event.EventTime.IsZero() {
		t.Fatal("expected a zero event time to be stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestTraceEventRepositoryListByTraceOrdersByTime(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&TraceEventRepository{}).WithDB(db)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "trace_id", "source", "event_type", "event_time"}).
		AddRow(1, "t-1", "tradingview", "alertReceived", at).
		AddRow(2, "t-1", "ghost", "ghostForwardAttempt", at.Add(time.Second))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trace_events" WHERE trace_id = $1 ORDER BY event_time ASC, id ASC`)).
		WithArgs("t-1").
		WillReturnRows(rows)

	events, err := repo.ListByTrace(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error listing events: %v", err)
	}
	if len(events) != 2 || events[0].EventType != model.EventAlertReceived {
		t.Fatalf("unexpected events: %+v", events)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestFillRepositoryAppendNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&FillRepository{}).WithDB(db)

	// No fills, no SQL.
	if err := repo.Append(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestFillRepositoryListByTrace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&FillRepository{}).WithDB(db)

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "trace_id", "fill_time", "price", "side"}).
		AddRow(1, "t-1", at, 5000.0, "buy").
		AddRow(2, "t-1", at.Add(time.Minute), 5010.0, "sell")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fills" WHERE trace_id = $1 ORDER BY fill_time ASC, id ASC`)).
		WithArgs("t-1").
		WillReturnRows(rows)

	fills, err := repo.ListByTrace(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error listing fills: %v", err)
	}
	if len(fills) != 2 || fills[0].Side != model.SideBuy || fills[1].Price != 5010.0 {
		t.Fatalf("unexpected fills: %+v", fills)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
