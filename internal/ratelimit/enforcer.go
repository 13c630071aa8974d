package ratelimit

import (
	"fmt"
	"time"
)

// CheckResult is the outcome of a restart budget check.
type CheckResult struct {
	Exceeded bool
	Node     string
	Current  int
	Limit    int
	Reason   string
}

// Check reports whether n more restarts of node would exceed the limit.
// Nothing is recorded.
func Check(t *Tracker, node string, n int, limit Limit, now time.Time) CheckResult {
	if t == nil || !limit.Enabled() {
		return CheckResult{}
	}
	count := t.Snapshot(node, limit.Window, now)
	if count+n <= limit.MaxRestarts {
		return CheckResult{}
	}
	return CheckResult{
		Exceeded: true,
		Node:     node,
		Current:  count,
		Limit:    limit.MaxRestarts,
		Reason: fmt.Sprintf("restart budget exceeded on %s: %d used, %d requested, %d per %s",
			node, count, n, limit.MaxRestarts, limit.Window),
	}
}

// Record counts n restarts of node when the limit is enabled.
func Record(t *Tracker, node string, n int, limit Limit, now time.Time) {
	if t == nil || !limit.Enabled() {
		return
	}
	t.Add(node, n, limit.Window, now)
}
