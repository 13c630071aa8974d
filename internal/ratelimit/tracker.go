package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Tracker counts restarts per node. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	nodes map[string]*window
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{nodes: make(map[string]*window)}
}

// Snapshot returns the restart count for node in the current window.
// An expired window is reset.
func (t *Tracker) Snapshot(node string, size time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.windowLocked(node, size, now).count
}

// Add records n restarts of node.
func (t *Tracker) Add(node string, n int, size time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windowLocked(node, size, now).count += n
}

func (t *Tracker) windowLocked(node string, size time.Duration, now time.Time) *window {
	w := t.nodes[node]
	if w == nil {
		w = &window{start: now}
		t.nodes[node] = w
	}
	if now.Sub(w.start) >= size {
		w.start = now
		w.count = 0
	}
	return w
}
