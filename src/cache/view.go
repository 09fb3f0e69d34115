package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradetrace/src/filter"
	"tradetrace/src/model"
)

// Kind names one cached collection. The names mirror the query keys of the
// dashboard consuming this view.
type Kind string

const (
	KindTraces      Kind = "traces"
	KindTrace       Kind = "trace"
	KindTraceEvents Kind = "traceEvents"
	KindTraceFills  Kind = "traceFills"
	KindAlerts      Kind = "webhookAlerts"
	KindSettings    Kind = "settings"
)

// Key addresses one cached entry: a collection plus, for detail reads, the
// trace id.
type Key struct {
	Kind Kind
	ID   string
}

// Backend is the store boundary the view synchronizes against. The
// production implementation is the pipeline controller; tests use a fake.
type Backend interface {
	ListTraces(ctx context.Context) ([]model.Trace, error)
	GetTrace(ctx context.Context, traceID string) (*model.Trace, error)
	GetTraceEvents(ctx context.Context, traceID string) ([]model.TraceEvent, error)
	GetTraceFills(ctx context.Context, traceID string) ([]model.Fill, error)
	GetWebhookAlerts(ctx context.Context) ([]model.WebhookAlert, error)
	GetWebhookAlert(ctx context.Context, alertID string) (*model.WebhookAlert, error)
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, settings model.Settings) error
	UpdateGhostStatus(ctx context.Context, traceID string, status model.GhostStatus, responseJSON string, errMsg *string) error
	RecordForwardAttempt(ctx context.Context, traceID string) error
	ReceiveWebhook(ctx context.Context, input *model.TraceInput, traceID string) (model.ReceiveWebhookResponse, error)
	ReceiveGhostCallback(ctx context.Context, payloadJSON string) error
	RefreshTrace(ctx context.Context, traceID string) error
}

const listKey = ""

// View is the client-local synchronized picture of the pipeline: one
// collection per entity, background refresh for the list reads, and
// mutations that each invalidate a fixed, declared key set before returning.
type View struct {
	backend Backend

	traces   *Collection[[]model.Trace]
	trace    *Collection[*model.Trace]
	events   *Collection[[]model.TraceEvent]
	fills    *Collection[[]model.Fill]
	alerts   *Collection[[]model.WebhookAlert]
	settings *Collection[model.Settings]

	refreshEvery time.Duration

	subsMu sync.Mutex
	subs   []chan Key
}

// NewView builds the view over a backend. refreshEvery is the background
// refresh interval for list-type reads; detail reads are on demand only.
func NewView(backend Backend, refreshEvery time.Duration) *View {
	v := &View{
		backend:      backend,
		refreshEvery: refreshEvery,
	}

	v.traces = NewCollection(func(ctx context.Context, _ string) ([]model.Trace, error) {
		traces, err := backend.ListTraces(ctx)
		if err != nil {
			return nil, err
		}
		// Ordering is part of the read contract; enforce it regardless of
		// what the store returned.
		sort.SliceStable(traces, func(i, j int) bool {
			return traces[i].AlertReceivedAt.Time.After(traces[j].AlertReceivedAt.Time)
		})
		return traces, nil
	})
	v.trace = NewCollection(func(ctx context.Context, id string) (*model.Trace, error) {
		return backend.GetTrace(ctx, id)
	})
	v.events = NewCollection(func(ctx context.Context, id string) ([]model.TraceEvent, error) {
		events, err := backend.GetTraceEvents(ctx, id)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].EventTime.Time.Before(events[j].EventTime.Time)
		})
		return events, nil
	})
	v.fills = NewCollection(func(ctx context.Context, id string) ([]model.Fill, error) {
		return backend.GetTraceFills(ctx, id)
	})
	v.alerts = NewCollection(func(ctx context.Context, _ string) ([]model.WebhookAlert, error) {
		alerts, err := backend.GetWebhookAlerts(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return alerts[i].ReceivedAt.Time.After(alerts[j].ReceivedAt.Time)
		})
		return alerts, nil
	})
	v.settings = NewCollection(func(ctx context.Context, _ string) (model.Settings, error) {
		return backend.GetSettings(ctx)
	})

	return v
}

// Start runs the background refresh tickers until ctx is done. Only the
// list-type collections refresh on a timer.
func (v *View) Start(ctx context.Context) {
	go v.refreshLoop(ctx, "traces", func(ctx context.Context) error {
		return v.traces.Refresh(ctx, listKey)
	})
	go v.refreshLoop(ctx, "webhookAlerts", func(ctx context.Context) error {
		return v.alerts.Refresh(ctx, listKey)
	})
}

func (v *View) refreshLoop(ctx context.Context, name string, refresh func(context.Context) error) {
	ticker := time.NewTicker(v.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := refresh(ctx); err != nil {
				logger.WithFields(map[string]interface{}{
					"component":  "cache",
					"collection": name,
				}).WithError(err).Warn("Background refresh failed, keeping last known value")
				continue
			}
			v.notify(Key{Kind: kindForName(name)})
		}
	}
}

func kindForName(name string) Kind {
	if name == "webhookAlerts" {
		return KindAlerts
	}
	return KindTraces
}

// ─── Reads ───────────────────────────────────────────────────────────────

func (v *View) ListTraces(ctx context.Context) ([]model.Trace, error) {
	return v.traces.Get(ctx, listKey)
}

// FilterTraces evaluates the predicate set against the cached trace list.
func (v *View) FilterTraces(ctx context.Context, f model.TraceQueryFilters) ([]model.Trace, error) {
	traces, err := v.traces.Get(ctx, listKey)
	if err != nil {
		return nil, err
	}
	return filter.Apply(traces, f), nil
}

func (v *View) GetTrace(ctx context.Context, traceID string) (*model.Trace, error) {
	return v.trace.Get(ctx, traceID)
}

func (v *View) GetTraceEvents(ctx context.Context, traceID string) ([]model.TraceEvent, error) {
	return v.events.Get(ctx, traceID)
}

func (v *View) GetTraceFills(ctx context.Context, traceID string) ([]model.Fill, error) {
	return v.fills.Get(ctx, traceID)
}

func (v *View) GetWebhookAlerts(ctx context.Context) ([]model.WebhookAlert, error) {
	return v.alerts.Get(ctx, listKey)
}

func (v *View) GetWebhookAlert(ctx context.Context, alertID string) (*model.WebhookAlert, error) {
	return v.backend.GetWebhookAlert(ctx, alertID)
}

func (v *View) GetSettings(ctx context.Context) (model.Settings, error) {
	return v.settings.Get(ctx, listKey)
}

// PeekTraces exposes the non-blocking snapshot of the trace list.
func (v *View) PeekTraces() Result[[]model.Trace] {
	return v.traces.Peek(listKey)
}

// ─── Mutations ───────────────────────────────────────────────────────────
//
// Each mutation declares exactly the keys it invalidates — never wider, so
// unrelated cached reads survive, and never narrower, so no stale
// cross-entity state stays visible after it returns.

func (v *View) UpdateGhostStatus(ctx context.Context, traceID string, status model.GhostStatus, responseJSON string, errMsg *string) error {
	if err := v.backend.UpdateGhostStatus(ctx, traceID, status, responseJSON, errMsg); err != nil {
		return err
	}
	v.invalidate(ctx,
		Key{Kind: KindTraces},
		Key{Kind: KindTrace, ID: traceID},
		Key{Kind: KindTraceEvents, ID: traceID},
	)
	return nil
}

func (v *View) RecordForwardAttempt(ctx context.Context, traceID string) error {
	if err := v.backend.RecordForwardAttempt(ctx, traceID); err != nil {
		return err
	}
	v.invalidate(ctx, Key{Kind: KindTraceEvents, ID: traceID})
	return nil
}

func (v *View) SaveSettings(ctx context.Context, settings model.Settings) error {
	if err := v.backend.SaveSettings(ctx, settings); err != nil {
		return err
	}
	v.invalidate(ctx, Key{Kind: KindSettings})
	return nil
}

func (v *View) ReceiveWebhook(ctx context.Context, input *model.TraceInput, traceID string) (model.ReceiveWebhookResponse, error) {
	resp, err := v.backend.ReceiveWebhook(ctx, input, traceID)
	if err != nil {
		return resp, err
	}
	v.invalidate(ctx,
		Key{Kind: KindTraces},
		Key{Kind: KindAlerts},
	)
	return resp, nil
}

func (v *View) ReceiveGhostCallback(ctx context.Context, payloadJSON string) error {
	if err := v.backend.ReceiveGhostCallback(ctx, payloadJSON); err != nil {
		return err
	}
	v.invalidate(ctx, Key{Kind: KindTraces})
	return nil
}

func (v *View) RefreshTrace(ctx context.Context, traceID string) error {
	if err := v.backend.RefreshTrace(ctx, traceID); err != nil {
		return err
	}
	v.invalidate(ctx,
		Key{Kind: KindTrace, ID: traceID},
		Key{Kind: KindTraceEvents, ID: traceID},
		Key{Kind: KindTraceFills, ID: traceID},
		Key{Kind: KindTraces},
	)
	return nil
}

// invalidate marks the keys stale (winning over any fetch already in
// flight), eagerly re-fetches the ones somebody is actually holding, and
// notifies subscribers.
func (v *View) invalidate(ctx context.Context, keys ...Key) {
	for _, key := range keys {
		switch key.Kind {
		case KindTraces:
			v.traces.Invalidate(listKey)
			if v.traces.HasValue(listKey) {
				_ = v.traces.Refresh(ctx, listKey)
			}
		case KindTrace:
			v.trace.Invalidate(key.ID)
			if v.trace.HasValue(key.ID) {
				_ = v.trace.Refresh(ctx, key.ID)
			}
		case KindTraceEvents:
			v.events.Invalidate(key.ID)
			if v.events.HasValue(key.ID) {
				_ = v.events.Refresh(ctx, key.ID)
			}
		case KindTraceFills:
			v.fills.Invalidate(key.ID)
			if v.fills.HasValue(key.ID) {
				_ = v.fills.Refresh(ctx, key.ID)
			}
		case KindAlerts:
			v.alerts.Invalidate(listKey)
			if v.alerts.HasValue(listKey) {
				_ = v.alerts.Refresh(ctx, listKey)
			}
		case KindSettings:
			v.settings.Invalidate(listKey)
			if v.settings.HasValue(listKey) {
				_ = v.settings.Refresh(ctx, listKey)
			}
		}
		v.notify(key)
	}
}

// ─── Subscriptions ───────────────────────────────────────────────────────

// Subscribe returns a channel receiving every invalidated or refreshed key.
// Slow subscribers drop notifications rather than block the cache.
func (v *View) Subscribe() chan Key {
	ch := make(chan Key, 16)
	v.subsMu.Lock()
	v.subs = append(v.subs, ch)
	v.subsMu.Unlock()
	return ch
}

func (v *View) Unsubscribe(ch chan Key) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for i, sub := range v.subs {
		if sub == ch {
			v.subs = append(v.subs[:i], v.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (v *View) notify(key Key) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	for _, sub := range v.subs {
		select {
		case sub <- key:
		default:
		}
	}
}
