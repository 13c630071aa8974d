package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned for a key with no request in the ledger.
var ErrNotFound = errors.New("approval: no such request")

var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey keeps keys inside the store directory.
func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("approval: empty key")
	case strings.Contains(key, ".."), !validKey.MatchString(key):
		return fmt.Errorf("approval: invalid key %q: only letters, digits, '.', '_' and '-' are allowed", key)
	}
	return nil
}

// Status is the lifecycle state of a four-eyes request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Approval is one second-approver request and its resolution.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason"`
	RecordID   string     `json:"record_id"`
	Approver   string     `json:"approver,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// lapsed reports whether a time-limited approval has run out.
func (a *Approval) lapsed(now time.Time) bool {
	return a.Status == StatusApproved && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// standing reports whether a new request keeps this one: it is still
// waiting, or it is a time-limited approval that has not run out.
func (a *Approval) standing(now time.Time) bool {
	switch a.Status {
	case StatusPending:
		return true
	case StatusApproved:
		return a.ExpiresAt != nil && !a.lapsed(now)
	}
	return false
}

func (a *Approval) resolve(status Status, now time.Time) {
	a.Status = status
	a.ResolvedAt = &now
}

// Store is the on-disk ledger of second-approver decisions, one JSON file
// per key. It is shared by every process pointing at the same directory.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewStore creates a Store backed by dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("approval: create directory: %w", err)
	}
	return &Store{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DefaultDir returns ~/.autoheal/approvals.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autoheal-approvals")
	}
	return filepath.Join(home, ".autoheal", "approvals")
}

// Request opens a pending request for recordID. A standing request under
// key is kept; anything else is replaced, so each new gate needs a fresh
// second approver.
func (s *Store) Request(key, reason, recordID string) error {
	return s.update(key, true, func(a *Approval, now time.Time) (bool, error) {
		if a.Key != "" && a.standing(now) {
			return false, nil
		}
		*a = Approval{Key: key, Status: StatusPending, Reason: reason, RecordID: recordID, CreatedAt: now}
		return true, nil
	})
}

// Approve names the second approver. With duration > 0 the approval holds
// until it expires; otherwise the next execution consumes it.
func (s *Store) Approve(key, approver string, duration time.Duration) error {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return ErrApproverRequired
	}
	return s.update(key, false, func(a *Approval, now time.Time) (bool, error) {
		a.resolve(StatusApproved, now)
		a.Approver = approver
		a.ExpiresAt = nil
		if duration > 0 {
			exp := now.Add(duration)
			a.ExpiresAt = &exp
		}
		return true, nil
	})
}

// Deny rejects a request.
func (s *Store) Deny(key string) error {
	return s.update(key, false, func(a *Approval, now time.Time) (bool, error) {
		a.resolve(StatusDenied, now)
		return true, nil
	})
}

// Check returns the status of key. A lapsed approval is recorded as
// expired.
func (s *Store) Check(key string) (Status, error) {
	var status Status
	err := s.update(key, false, func(a *Approval, now time.Time) (bool, error) {
		if a.lapsed(now) {
			a.resolve(StatusExpired, now)
			status = StatusExpired
			return true, nil
		}
		status = a.Status
		return false, nil
	})
	return status, err
}

// Get returns the request stored under key.
func (s *Store) Get(key string) (*Approval, error) {
	var out Approval
	err := s.update(key, false, func(a *Approval, _ time.Time) (bool, error) {
		out = *a
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume uses up a one-time approval. A time-limited approval is left in
// place until it expires.
func (s *Store) Consume(key string) error {
	return s.update(key, false, func(a *Approval, now time.Time) (bool, error) {
		switch {
		case a.Status == StatusConsumed:
			return false, fmt.Errorf("approval: %s already consumed", key)
		case a.Status == StatusApproved && a.ExpiresAt != nil:
			return false, nil
		}
		a.resolve(StatusConsumed, now)
		return true, nil
	})
}

// List returns every request in the store.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.keys()
	if err != nil {
		return nil, err
	}
	var out []Approval
	for _, key := range names {
		if a, err := s.read(key); err == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Cleanup deletes resolved requests older than retention and returns how
// many were removed. Pending requests and standing approvals are kept.
func (s *Store) Cleanup(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.keys()
	if err != nil {
		return 0, err
	}
	now := s.now()
	removed := 0
	var errs []error
	for _, key := range names {
		a, err := s.read(key)
		if err != nil || a.standing(now) {
			continue
		}
		at := a.CreatedAt
		if a.ResolvedAt != nil {
			at = *a.ResolvedAt
		}
		if a.ExpiresAt != nil && a.ExpiresAt.After(at) {
			at = *a.ExpiresAt
		}
		if now.Sub(at) < retention {
			continue
		}
		if err := os.Remove(s.path(key)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// update loads key, applies fn and writes the result when fn asks for it.
// With create set, a missing request starts as the zero Approval.
func (s *Store) update(key string, create bool, fn func(a *Approval, now time.Time) (bool, error)) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	switch {
	case errors.Is(err, fs.ErrNotExist) && create:
		a = &Approval{}
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil:
		return fmt.Errorf("approval: read %s: %w", key, err)
	}

	write, err := fn(a, s.now())
	if err != nil || !write {
		return err
	}
	return s.write(key, a)
}

func (s *Store) keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approval: list: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			keys = append(keys, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	return keys, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// write replaces the request file atomically.
func (s *Store) write(key string, a *Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("approval: write %s: %w", key, err)
	}
	return os.Rename(tmp, s.path(key))
}
