// Package pending correlates asynchronous replies with the requests that
// caused them. Each correlation id maps to a one-shot handle and a timer;
// whichever of reply, rejection or expiry comes first wins and the entry is
// removed.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is matched (errors.Is) by every expiry error.
	ErrTimeout = errors.New("request timed out")
	// ErrDuplicateID is returned when registering an id that is still pending.
	ErrDuplicateID = errors.New("correlation id already pending")
	// ErrCancelled is delivered to a handle released with Cancel.
	ErrCancelled = errors.New("request cancelled")
)

// TimeoutError reports which exchange expired and after how long.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.ID, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type result[T any] struct {
	value T
	err   error
}

type entry[T any] struct {
	ch    chan result[T]
	timer *time.Timer
}

// Registry maps correlation ids to pending handles.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]*entry[T])}
}

// Handle is the caller's side of one pending exchange.
type Handle[T any] struct {
	id  string
	reg *Registry[T]
	ch  <-chan result[T]
}

// Register starts tracking id. The exchange fails with a *TimeoutError if
// nothing resolves it within timeout; timeout <= 0 disables the timer.
func (r *Registry[T]) Register(id string, timeout time.Duration) (*Handle[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, ErrDuplicateID
	}

	e := &entry[T]{ch: make(chan result[T], 1)}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() {
			r.finish(id, result[T]{err: &TimeoutError{ID: id, After: timeout}})
		})
	}
	r.entries[id] = e

	return &Handle[T]{id: id, reg: r, ch: e.ch}, nil
}

// Resolve completes id with a value. It reports false if id is not pending.
func (r *Registry[T]) Resolve(id string, value T) bool {
	return r.finish(id, result[T]{value: value})
}

// Reject completes id with an error. It reports false if id is not pending.
func (r *Registry[T]) Reject(id string, err error) bool {
	return r.finish(id, result[T]{err: err})
}

// Len returns the number of pending exchanges.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RejectAll fails every pending exchange, e.g. when the transport goes away.
func (r *Registry[T]) RejectAll(err error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Reject(id, err)
	}
}

func (r *Registry[T]) finish(id string, res result[T]) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	// buffered, and only the goroutine that removed the entry gets here
	e.ch <- res
	return true
}

// ID returns the correlation id.
func (h *Handle[T]) ID() string {
	return h.id
}

// Wait blocks until the exchange reaches its terminal state. If ctx ends
// first the entry is released and ctx.Err() returned.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case res := <-h.ch:
		return res.value, res.err
	case <-ctx.Done():
		h.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel releases the entry if it is still pending.
func (h *Handle[T]) Cancel() {
	h.reg.finish(h.id, result[T]{err: ErrCancelled})
}
