package policy

import "sync/atomic"

// Snapshot is one loaded config together with the hash of its source.
type Snapshot struct {
	Config *Config
	Hash   string
}

// Holder publishes the current config to readers. Runs take a snapshot when
// they start, so a reload never changes the policy of a run in progress.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

// NewHolder creates a holder seeded with cfg.
func NewHolder(cfg *Config, hash string) *Holder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	h := &Holder{}
	h.cur.Store(&Snapshot{Config: cfg, Hash: hash})
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() Snapshot {
	return *h.cur.Load()
}

// Store replaces the current snapshot.
func (h *Holder) Store(cfg *Config, hash string) {
	h.cur.Store(&Snapshot{Config: cfg, Hash: hash})
}
