package transport

import (
	"context"
	"sync"
)

// AbortRegistry tracks in-flight request contexts by id so a request can be
// torn down from outside its call stack. Cancelling the context closes the
// underlying connection, which ends any open stream.
type AbortRegistry struct {
	mu      sync.Mutex
	entries map[string]*abortEntry
}

type abortEntry struct {
	cancel context.CancelFunc
}

func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{entries: make(map[string]*abortEntry)}
}

// Register derives a cancellable context for the request id, superseding any
// prior registration under the same id. The returned release func must be
// called when the request finishes; it removes the entry and cancels the
// context.
func (r *AbortRegistry) Register(parent context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	entry := &abortEntry{cancel: cancel}

	r.mu.Lock()
	if prev, ok := r.entries[id]; ok {
		prev.cancel()
	}
	r.entries[id] = entry
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if current, ok := r.entries[id]; ok && current == entry {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Abort cancels the request registered under id. Returns false when no such
// request is in flight.
func (r *AbortRegistry) Abort(id string) bool {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok {
		entry.cancel()
	}
	return ok
}

// Len reports the number of in-flight requests.
func (r *AbortRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
