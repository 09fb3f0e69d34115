package cache

import (
	"context"
	"sync"
)

// Result is a snapshot of one cached entry. Ok means a fresh value is
// present; Loading means nothing has ever been cached and the first fetch is
// still in flight. On fetch failure the previous value is retained and Err
// is raised; whether to show stale data or an error is the caller's call.
type Result[T any] struct {
	Value   T
	Ok      bool
	Loading bool
	Err     error
}

// Collection is one keyed cache of a single entity type. It serializes the
// read-modify-invalidate sequence per key and tracks a monotonic fetch
// sequence so a stale completion can never overwrite a newer one:
// invalidation bumps the sequence, and a fetch result only applies while its
// sequence is still current.
type Collection[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	fetch   func(ctx context.Context, key string) (T, error)
}

type entry[T any] struct {
	mu       sync.Mutex
	value    T
	hasValue bool
	fresh    bool
	err      error
	seq      uint64
	fetching int
	// done is non-nil while a read-through fetch is in flight; concurrent
	// reads wait on it instead of fetching themselves.
	done chan struct{}
}

func NewCollection[T any](fetch func(ctx context.Context, key string) (T, error)) *Collection[T] {
	return &Collection[T]{
		entries: make(map[string]*entry[T]),
		fetch:   fetch,
	}
}

func (c *Collection[T]) entry(key string) *entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

// Get is the read-through path: a fresh value returns immediately, anything
// else fetches. Concurrent reads of a stale key coalesce onto a single
// fetch. Only Invalidate and Refresh bump the sequence, so a fetch is
// discarded and retried exactly when a mutation raced it, and a read issued
// after a mutation can never observe pre-mutation data.
func (c *Collection[T]) Get(ctx context.Context, key string) (T, error) {
	e := c.entry(key)

	for {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}

		e.mu.Lock()
		if e.fresh {
			v := e.value
			e.mu.Unlock()
			return v, nil
		}
		if e.done != nil {
			// Another read's fetch is in flight; share its outcome.
			done := e.done
			e.mu.Unlock()
			select {
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			case <-done:
			}
			continue
		}
		mySeq := e.seq
		done := make(chan struct{})
		e.done = done
		e.fetching++
		e.mu.Unlock()

		v, err := c.fetch(ctx, key)

		e.mu.Lock()
		e.fetching--
		e.done = nil
		close(done)
		if mySeq != e.seq {
			// Invalidated or superseded mid-fetch; the result is stale.
			e.mu.Unlock()
			continue
		}
		if err != nil {
			e.err = err
			hasValue := e.hasValue
			prev := e.value
			e.mu.Unlock()
			if hasValue {
				return prev, err
			}
			var zero T
			return zero, err
		}
		e.value = v
		e.hasValue = true
		e.fresh = true
		e.err = nil
		e.mu.Unlock()
		return v, nil
	}
}

// Peek returns the entry state without fetching.
func (c *Collection[T]) Peek(key string) Result[T] {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Result[T]{
		Value:   e.value,
		Ok:      e.hasValue && e.fresh,
		Loading: !e.hasValue && e.fetching > 0,
		Err:     e.err,
	}
}

// Refresh re-fetches a key in place. The current value stays visible while
// the fetch runs; the result applies only if nothing newer happened
// meanwhile (last write wins by sequence, not by completion order).
func (c *Collection[T]) Refresh(ctx context.Context, key string) error {
	e := c.entry(key)

	e.mu.Lock()
	e.seq++
	mySeq := e.seq
	e.fetching++
	e.mu.Unlock()

	v, err := c.fetch(ctx, key)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching--
	if mySeq != e.seq {
		return nil // superseded; drop silently
	}
	if err != nil {
		e.err = err // previous value retained
		return err
	}
	e.value = v
	e.hasValue = true
	e.fresh = true
	e.err = nil
	return nil
}

// Invalidate marks a key stale and defeats any fetch already in flight.
// The old value is kept only as the failure fallback; the next Get fetches.
func (c *Collection[T]) Invalidate(key string) {
	e := c.entry(key)
	e.mu.Lock()
	e.seq++
	e.fresh = false
	e.mu.Unlock()
}

// HasValue reports whether a key has ever been populated, fresh or not.
func (c *Collection[T]) HasValue(key string) bool {
	e := c.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasValue
}

// Keys returns every key this collection has seen.
func (c *Collection[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
