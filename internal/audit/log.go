package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// GenesisHash chains the first entry of a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

const maxLine = 1 << 20

// Log persists bulk run audit entries as JSONL. Every line carries the
// hash of the line before it in prev_hash.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
	tail string
}

// Open opens path for appending, creating it and its directory if needed.
// An existing log is continued from its last line.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	tail := GenesisHash
	err := eachLine(path, func(_ int, line []byte) error {
		tail = HashLine(line)
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &Log{path: path, f: f, tail: tail}, nil
}

// Path returns the file backing the log.
func (l *Log) Path() string {
	return l.path
}

// Record chains and appends entry, then syncs the file. entry is passed
// by value, so the caller's copy keeps an empty prev_hash.
func (l *Log) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.PrevHash = l.tail
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: encode entry %s: %w", entry.ID, err)
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append entry %s: %w", entry.ID, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	l.tail = HashLine(line)
	return nil
}

// Close closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// HashLine returns "sha256:<hex>" of line.
func HashLine(line []byte) string {
	sum := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// eachLine calls fn with every non-empty line of path, numbered from 1.
// The slice is only valid during the call.
func eachLine(path string, fn func(n int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	n := 0
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		n++
		if err := fn(n, sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
