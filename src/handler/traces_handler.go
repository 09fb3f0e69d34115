package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradetrace/src/controller"
	"tradetrace/src/metrics"
	"tradetrace/src/model"
)

type traceReader interface {
	ListTraces(ctx context.Context) ([]model.Trace, error)
	FilterTraces(ctx context.Context, f model.TraceQueryFilters) ([]model.Trace, error)
	GetTrace(ctx context.Context, traceID string) (*model.Trace, error)
	GetTraceEvents(ctx context.Context, traceID string) ([]model.TraceEvent, error)
	GetTraceFills(ctx context.Context, traceID string) ([]model.Fill, error)
	GetSettings(ctx context.Context) (model.Settings, error)
	RefreshTrace(ctx context.Context, traceID string) error
}

// ListTracesHandler returns the synchronized trace list, newest alert first.
func ListTracesHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traces, err := view.ListTraces(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list traces")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, traces)
	}
}

// FilterTracesHandler evaluates the conjunctive predicate set from query
// parameters against the cached trace list.
func FilterTracesHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters, err := parseTraceFilters(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		traces, err := view.FilterTraces(r.Context(), filters)
		if err != nil {
			logger.WithError(err).Error("failed to filter traces")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, traces)
	}
}

func parseTraceFilters(r *http.Request) (model.TraceQueryFilters, error) {
	var filters model.TraceQueryFilters
	q := r.URL.Query()

	if ticker := q.Get("ticker"); ticker != "" {
		filters.Ticker = &ticker
	}
	if strategy := q.Get("strategy"); strategy != "" {
		filters.Strategy = &strategy
	}
	if s := q.Get("ghost_status"); s != "" {
		status := model.ParseGhostStatus(s)
		filters.GhostStatus = &status
	}
	if s := q.Get("tradovate_status"); s != "" {
		status := model.ParseTradeStatus(s)
		filters.TradovateStatus = &status
	}
	if s := q.Get("start_time"); s != "" {
		t, err := parseNanoParam(s)
		if err != nil {
			return filters, errors.New("invalid start_time")
		}
		filters.StartTime = &t
	}
	if s := q.Get("end_time"); s != "" {
		t, err := parseNanoParam(s)
		if err != nil {
			return filters, errors.New("invalid end_time")
		}
		filters.EndTime = &t
	}
	return filters, nil
}

func parseNanoParam(s string) (model.NanoTime, error) {
	ns, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return model.NanoTime{}, err
	}
	return model.NewNanoTime(time.Unix(0, ns).UTC()), nil
}

// GetTraceHandler returns a single trace by id.
func GetTraceHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		trace, err := view.GetTrace(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trace == nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}
		writeJSON(w, trace)
	}
}

// TraceEventsHandler returns a trace's lineage events, oldest first.
func TraceEventsHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		events, err := view.GetTraceEvents(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace events")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
	}
}

// TraceFillsHandler returns a trace's execution reports, oldest first.
func TraceFillsHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		fills, err := view.GetTraceFills(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace fills")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, fills)
	}
}

// RefreshTraceHandler re-polls the brokerage for one trace.
func RefreshTraceHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		if err := view.RefreshTrace(r.Context(), traceID); err != nil {
			if errors.Is(err, controller.ErrTraceNotFound) {
				http.Error(w, "trace not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to refresh trace")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExitWarningHandler reports whether a working trace has been open past the
// configured warn window without enough exit progress.
func ExitWarningHandler(view traceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		trace, err := view.GetTrace(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trace == nil {
			http.Error(w, "trace not found", http.StatusNotFound)
			return
		}

		fills, err := view.GetTraceFills(r.Context(), traceID)
		if err != nil {
			logger.WithError(err).Error("failed to get trace fills")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		settings, err := view.GetSettings(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to get settings")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		warn := metrics.ExitWarning(*trace, fills, settings, time.Now().UTC())
		writeJSON(w, map[string]bool{"exit_warning": warn})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
