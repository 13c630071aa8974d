package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/autoheal/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// HaltNote is attached to the failed entry that stops a bulk run.
const HaltNote = "Fix failed on this ticket; bulk run halted and escalated."

// AuditEntry is the immutable record of one step of a bulk run.
// Every entry of a run carries the same MasterReason, which links each
// resolved ticket back to the justification that authorized the run.
// All fields are plain values to keep json.Marshal output deterministic
// for hash chaining.
type AuditEntry struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	RecordID     string        `json:"record_id"`
	MasterReason string        `json:"master_reason"`
	Index        int           `json:"index"`
	Total        int           `json:"total"`
	Outcome      model.Outcome `json:"outcome"`
	Timestamp    string        `json:"ts"`
	Note         string        `json:"note,omitempty"`
	ConfigHash   string        `json:"config_hash,omitempty"`
	PrevHash     string        `json:"prev_hash,omitempty"`
}

// Time parses the entry timestamp. Zero time if unparseable.
func (e AuditEntry) Time() time.Time {
	t, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Line renders the entry as one line of an exported report.
func (e AuditEntry) Line() string {
	return fmt.Sprintf("%s Ticket %d/%d %s", e.Timestamp, e.Index, e.Total, e.Outcome)
}

// Builder constructs audit entries. The zero value uses the wall clock and
// UUIDv7 identifiers.
type Builder struct {
	Now        func() time.Time
	ConfigHash string
}

// Build creates the entry for step index (0-based) of total in run runID.
// The stored index is 1-based. Each call yields a fresh ID, so a retried
// step produces a new entry instead of overwriting the old one.
func (b Builder) Build(masterReason, recordID, runID string, index, total int, outcome model.Outcome, note string) AuditEntry {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return AuditEntry{
		ID:           fmt.Sprintf("bulk-audit-%s-%d-%s", runID, index, uuid.Must(uuid.NewV7()).String()),
		RunID:        runID,
		RecordID:     recordID,
		MasterReason: masterReason,
		Index:        index + 1,
		Total:        total,
		Outcome:      outcome,
		Timestamp:    now().UTC().Format(TimestampFormat),
		Note:         note,
		ConfigHash:   b.ConfigHash,
	}
}

// Lines renders entries as report lines in order.
func Lines(entries []AuditEntry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line())
	}
	return lines
}
