package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"tradetrace/src/ghost"
	"tradetrace/src/model"
)

type mockForwarder struct {
	outcome ghost.Outcome
	err     error

	forwarded  []string
	dryRuns    []string
	gotPayload map[string]interface{}
	gotURL     string
}

func (m *mockForwarder) Forward(ctx context.Context, traceID string, payload map[string]interface{}, relayURL string) (ghost.Outcome, error) {
	m.forwarded = append(m.forwarded, traceID)
	m.gotPayload = payload
	m.gotURL = relayURL
	return m.outcome, m.err
}

func (m *mockForwarder) DryRun(ctx context.Context, traceID string) (ghost.Outcome, error) {
	m.dryRuns = append(m.dryRuns, traceID)
	return m.outcome, m.err
}

func forwardRouter(view *mockView, forwarder *mockForwarder) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/traces/{traceID}/forward", ForwardTraceHandler(view, forwarder))
	return r
}

func TestForwardTraceHandler(t *testing.T) {
	view := &mockView{
		trace: &model.Trace{
			TraceID:            "t-1",
			ParamsSnapshotJSON: `{"qty":2}`,
		},
		settings: model.Settings{GhostWebhookURL: "https://relay.internal/hook"},
	}
	forwarder := &mockForwarder{outcome: ghost.Outcome{Status: model.GhostAccepted, ResponseBody: "{}"}}
	rr := httptest.NewRecorder()

	forwardRouter(view, forwarder).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/traces/t-1/forward", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(forwarder.forwarded) != 1 || forwarder.forwarded[0] != "t-1" {
		t.Fatalf("expected one live forward, got %v", forwarder.forwarded)
	}
	if len(forwarder.dryRuns) != 0 {
		t.Fatal("live mode must not dry-run")
	}
	if forwarder.gotURL != "https://relay.internal/hook" {
		t.Fatalf("relay url not taken from settings: %q", forwarder.gotURL)
	}
	if forwarder.gotPayload["qty"] != float64(2) {
		t.Fatalf("snapshot not decoded into the payload: %+v", forwarder.gotPayload)
	}

	var got ghost.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if got.Status != model.GhostAccepted {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}

func TestForwardTraceHandler_TestModeDryRuns(t *testing.T) {
	view := &mockView{
		trace:    &model.Trace{TraceID: "t-1"},
		settings: model.Settings{PipelineTestMode: true, GhostWebhookURL: "https://relay.internal/hook"},
	}
	forwarder := &mockForwarder{outcome: ghost.Outcome{Status: model.GhostAccepted}}
	rr := httptest.NewRecorder()

	forwardRouter(view, forwarder).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/traces/t-1/forward", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(forwarder.dryRuns) != 1 || len(forwarder.forwarded) != 0 {
		t.Fatalf("expected a dry run only, got dryRuns=%v forwarded=%v", forwarder.dryRuns, forwarder.forwarded)
	}
}

func TestForwardTraceHandler_NotFound(t *testing.T) {
	view := &mockView{}
	forwarder := &mockForwarder{}
	rr := httptest.NewRecorder()

	forwardRouter(view, forwarder).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/traces/missing/forward", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if len(forwarder.forwarded)+len(forwarder.dryRuns) != 0 {
		t.Fatal("a missing trace must never be forwarded")
	}
}

func TestForwardTraceHandler_InFlightConflict(t *testing.T) {
	view := &mockView{trace: &model.Trace{TraceID: "t-1"}}
	forwarder := &mockForwarder{err: ghost.ErrForwardInFlight}
	rr := httptest.NewRecorder()

	forwardRouter(view, forwarder).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/traces/t-1/forward", nil))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestForwardTraceHandler_BadSnapshotFallsBackToEmptyPayload(t *testing.T) {
	view := &mockView{
		trace: &model.Trace{TraceID: "t-1", ParamsSnapshotJSON: "not json"},
	}
	forwarder := &mockForwarder{outcome: ghost.Outcome{Status: model.GhostAccepted}}
	rr := httptest.NewRecorder()

	forwardRouter(view, forwarder).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/traces/t-1/forward", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(forwarder.gotPayload) != 0 {
		t.Fatalf("expected an empty payload for a bad snapshot, got %+v", forwarder.gotPayload)
	}
}
