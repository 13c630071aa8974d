// Package ratelimit caps how many restarts a grid node may receive within
// a fixed window. Escalations are never counted.
package ratelimit

import "time"

// Limit is the restart budget for one node.
// Zero values mean no limit.
type Limit struct {
	MaxRestarts int           `yaml:"max_restarts"`
	Window      time.Duration `yaml:"window"`
}

// Enabled returns true if the limit is configured.
func (l Limit) Enabled() bool {
	return l.MaxRestarts > 0 && l.Window > 0
}
