package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCollectionGetFetchesOnceWhileFresh(t *testing.T) {
	var calls int32
	c := NewCollection(func(ctx context.Context, key string) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	})

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "k")
		if err != nil || v != 42 {
			t.Fatalf("get %d: expected 42, got %d err=%v", i, v, err)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single fetch while fresh, got %d", got)
	}
}

func TestCollectionInvalidateForcesRefetch(t *testing.T) {
	var calls int32
	c := NewCollection(func(ctx context.Context, key string) (int32, error) {
		return atomic.AddInt32(&calls, 1), nil
	})

	if v, _ := c.Get(context.Background(), "k"); v != 1 {
		t.Fatalf("expected first fetch value 1, got %d", v)
	}

	c.Invalidate("k")

	if v, _ := c.Get(context.Background(), "k"); v != 2 {
		t.Fatalf("expected refetch after invalidation, got %d", v)
	}
}

func TestCollectionInvalidationDefeatsInFlightFetch(t *testing.T) {
	fetchStarted := make(chan struct{})
	releaseFetch := make(chan struct{})
	var calls int32

	c := NewCollection(func(ctx context.Context, key string) (int32, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(fetchStarted)
			<-releaseFetch // first fetch returns pre-mutation data
		}
		return n, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var got int32
	go func() {
		defer wg.Done()
		got, _ = c.Get(context.Background(), "k")
	}()

	<-fetchStarted
	c.Invalidate("k")
	close(releaseFetch)
	wg.Wait()

	// The stale completion must be discarded and the read retried.
	if got != 2 {
		t.Fatalf("expected the post-invalidation fetch result, got %d", got)
	}
}

func TestCollectionConcurrentColdReadsShareOneFetch(t *testing.T) {
	fetchStarted := make(chan struct{})
	releaseFetch := make(chan struct{})
	var calls int32

	c := NewCollection(func(ctx context.Context, key string) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(fetchStarted)
			<-releaseFetch
		}
		return 7, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Get(context.Background(), "k")
	}()

	<-fetchStarted

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = c.Get(context.Background(), "k")
	}()

	// Let the second reader reach the entry before the fetch resolves.
	time.Sleep(20 * time.Millisecond)
	close(releaseFetch)
	wg.Wait()

	if results[0] != 7 || results[1] != 7 {
		t.Fatalf("expected both readers to see the fetched value, got %v", results)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected concurrent cold reads to share one fetch, got %d", got)
	}
}

func TestCollectionRetainsValueOnFetchError(t *testing.T) {
	boom := errors.New("backend down")
	fail := false
	c := NewCollection(func(ctx context.Context, key string) (string, error) {
		if fail {
			return "", boom
		}
		return "good", nil
	})

	if v, err := c.Get(context.Background(), "k"); err != nil || v != "good" {
		t.Fatalf("seed fetch failed: %q err=%v", v, err)
	}

	fail = true
	c.Invalidate("k")

	v, err := c.Get(context.Background(), "k")
	if !errors.Is(err, boom) {
		t.Fatalf("expected the fetch error to surface, got %v", err)
	}
	if v != "good" {
		t.Fatalf("expected the previous value to be retained, got %q", v)
	}

	res := c.Peek("k")
	if res.Ok {
		t.Fatal("expected entry to be stale after a failed refetch")
	}
	if res.Value != "good" {
		t.Fatalf("expected stale value kept, got %q", res.Value)
	}
}

func TestCollectionPeekLoadingState(t *testing.T) {
	fetchStarted := make(chan struct{})
	releaseFetch := make(chan struct{})

	c := NewCollection(func(ctx context.Context, key string) (int, error) {
		close(fetchStarted)
		<-releaseFetch
		return 1, nil
	})

	if res := c.Peek("k"); res.Ok || res.Loading {
		t.Fatalf("expected an untouched entry to be neither ok nor loading, got %+v", res)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "k")
	}()

	<-fetchStarted
	if res := c.Peek("k"); !res.Loading {
		t.Fatalf("expected loading during the first fetch, got %+v", res)
	}

	close(releaseFetch)
	<-done

	if res := c.Peek("k"); !res.Ok || res.Loading {
		t.Fatalf("expected ok after the fetch, got %+v", res)
	}
}

func TestCollectionRefreshKeepsOldValueVisible(t *testing.T) {
	fetchStarted := make(chan struct{})
	releaseFetch := make(chan struct{})
	second := false

	c := NewCollection(func(ctx context.Context, key string) (int, error) {
		if second {
			close(fetchStarted)
			<-releaseFetch
			return 2, nil
		}
		return 1, nil
	})

	if _, err := c.Get(context.Background(), "k"); err != nil {
		t.Fatalf("seed fetch failed: %v", err)
	}

	second = true
	go func() { _ = c.Refresh(context.Background(), "k") }()
	<-fetchStarted

	// Old value stays readable while the refresh runs.
	if res := c.Peek("k"); res.Value != 1 {
		t.Fatalf("expected the old value during refresh, got %d", res.Value)
	}

	close(releaseFetch)

	deadline := time.After(2 * time.Second)
	for {
		if res := c.Peek("k"); res.Value == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("refresh never applied the new value")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCollectionGetHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCollection(func(ctx context.Context, key string) (int, error) {
		t.Fatal("fetch must not run with a dead context")
		return 0, nil
	})

	if _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
