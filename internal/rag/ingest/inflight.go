package ingest

import (
	"context"
	"sync"
)

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// inflight tracks the pipeline runs of this process so a delete can stop them.
type inflight struct {
	mu      sync.Mutex
	running map[string]*run
}

func newInflight() *inflight {
	return &inflight{running: make(map[string]*run)}
}

func (f *inflight) start(id string, cancel context.CancelFunc) *run {
	r := &run{cancel: cancel, done: make(chan struct{})}
	f.mu.Lock()
	f.running[id] = r
	f.mu.Unlock()
	return r
}

func (f *inflight) finish(id string, r *run) {
	f.mu.Lock()
	if f.running[id] == r {
		delete(f.running, id)
	}
	f.mu.Unlock()
	r.cancel()
	close(r.done)
}

// cancelAndWait returns false when the run did not stop before ctx expired.
func (f *inflight) cancelAndWait(ctx context.Context, id string) bool {
	f.mu.Lock()
	r, ok := f.running[id]
	f.mu.Unlock()
	if !ok {
		return true
	}
	r.cancel()
	select {
	case <-r.done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *inflight) active(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.running[id]
	return ok
}
