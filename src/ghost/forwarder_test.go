package ghost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tradetrace/src/model"
)

type committedStatus struct {
	status   model.GhostStatus
	response string
	errMsg   *string
}

type fakeCommitter struct {
	mu       sync.Mutex
	attempts []string
	commits  map[string][]committedStatus
	block    chan struct{} // when set, UpdateGhostStatus waits on it
}

func newFakeCommitter() *fakeCommitter {
	return &fakeCommitter{commits: map[string][]committedStatus{}}
}

func (c *fakeCommitter) UpdateGhostStatus(ctx context.Context, traceID string, status model.GhostStatus, responseJSON string, errMsg *string) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits[traceID] = append(c.commits[traceID], committedStatus{status: status, response: responseJSON, errMsg: errMsg})
	return nil
}

func (c *fakeCommitter) RecordForwardAttempt(ctx context.Context, traceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, traceID)
	return nil
}

func (c *fakeCommitter) committed(traceID string) []committedStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits[traceID]
}

func TestForwardSkipsWhenRelayNotConfigured(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, time.Second)

	for _, url := range []string{"", "   ", "dummy://"} {
		outcome, err := forwarder.Forward(context.Background(), "t-1", nil, url)
		if err != nil {
			t.Fatalf("url %q: unexpected error %v", url, err)
		}
		if !outcome.Skipped {
			t.Fatalf("url %q: expected skip", url)
		}
	}

	if calls != 0 {
		t.Fatalf("expected zero network calls, got %d", calls)
	}
	if len(committer.attempts) != 0 || len(committer.committed("t-1")) != 0 {
		t.Fatal("a skipped forward must leave no record at all")
	}
}

func TestForwardAcceptedOn2xx(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, time.Second)

	outcome, err := forwarder.Forward(context.Background(), "t-1", map[string]interface{}{"qty": 2}, server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != model.GhostAccepted {
		t.Fatalf("expected accepted, got %s", outcome.Status)
	}
	if outcome.ResponseBody != `{"received":true}` {
		t.Fatalf("expected the raw relay body preserved, got %q", outcome.ResponseBody)
	}

	// The dispatched payload carries the trace id alongside the snapshot.
	if gotBody["trace_id"] != "t-1" || gotBody["qty"] != float64(2) {
		t.Fatalf("unexpected dispatched payload: %+v", gotBody)
	}

	commits := committer.committed("t-1")
	if len(commits) != 1 || commits[0].status != model.GhostAccepted || commits[0].errMsg != nil {
		t.Fatalf("expected exactly one accepted commit, got %+v", commits)
	}
	if len(committer.attempts) != 1 {
		t.Fatalf("expected one attempt event, got %d", len(committer.attempts))
	}
}

func TestForwardRejectedOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, time.Second)

	outcome, err := forwarder.Forward(context.Background(), "t-1", nil, server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != model.GhostRejected {
		t.Fatalf("expected rejected, got %s", outcome.Status)
	}
	if outcome.ResponseBody != "boom" {
		t.Fatalf("expected the raw body preserved, got %q", outcome.ResponseBody)
	}
	if !strings.Contains(outcome.ErrorMessage, "500") || !strings.Contains(outcome.ErrorMessage, "boom") {
		t.Fatalf("expected the error to carry status and body, got %q", outcome.ErrorMessage)
	}

	commits := committer.committed("t-1")
	if len(commits) != 1 || commits[0].status != model.GhostRejected {
		t.Fatalf("expected exactly one rejected commit, got %+v", commits)
	}
	if commits[0].errMsg == nil || !strings.Contains(*commits[0].errMsg, "HTTP 500") {
		t.Fatalf("expected the committed error message, got %+v", commits[0].errMsg)
	}
}

func TestForwardRejectedOnTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, time.Second)

	outcome, err := forwarder.Forward(context.Background(), "t-1", nil, server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != model.GhostRejected {
		t.Fatalf("expected rejected, got %s", outcome.Status)
	}
	// No response exists, so an empty object stands in for the body.
	if outcome.ResponseBody != "{}" {
		t.Fatalf("expected placeholder body, got %q", outcome.ResponseBody)
	}
	if outcome.ErrorMessage == "" {
		t.Fatal("expected the transport error message as evidence")
	}

	commits := committer.committed("t-1")
	if len(commits) != 1 || commits[0].response != "{}" {
		t.Fatalf("expected one rejected commit with placeholder body, got %+v", commits)
	}
}

func TestForwardRejectsConcurrentAttempt(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, 5*time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = forwarder.Forward(context.Background(), "t-1", nil, server.URL)
	}()

	// Wait for the first forward to take the in-flight slot.
	deadline := time.After(2 * time.Second)
	for {
		if _, loaded := forwarder.inflight.Load("t-1"); loaded {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first forward never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := forwarder.Forward(context.Background(), "t-1", nil, server.URL)
	if !errors.Is(err, ErrForwardInFlight) {
		t.Fatalf("expected ErrForwardInFlight, got %v", err)
	}

	close(release)
	<-done

	if commits := committer.committed("t-1"); len(commits) != 1 {
		t.Fatalf("expected exactly one commit despite the concurrent attempt, got %d", len(commits))
	}
}

func TestDryRunCommitsAcceptedWithoutDispatch(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	committer := newFakeCommitter()
	forwarder := NewForwarderWithTimeout(committer, time.Second)

	outcome, err := forwarder.DryRun(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Status != model.GhostAccepted {
		t.Fatalf("expected accepted, got %s", outcome.Status)
	}
	if calls != 0 {
		t.Fatalf("expected no network call in test mode, got %d", calls)
	}
	commits := committer.committed("t-1")
	if len(commits) != 1 || !strings.Contains(commits[0].response, "test_mode") {
		t.Fatalf("expected a test-mode commit, got %+v", commits)
	}
	if len(committer.attempts) != 1 {
		t.Fatalf("expected the attempt event even in test mode, got %d", len(committer.attempts))
	}
}

func TestConfigured(t *testing.T) {
	cases := map[string]bool{
		"":                        false,
		"   ":                     false,
		"dummy://":                false,
		"https://relay.internal/": true,
	}
	for url, want := range cases {
		if got := Configured(url); got != want {
			t.Fatalf("Configured(%q): expected %v, got %v", url, want, got)
		}
	}
}
