package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/autoheal/internal/model"
)

// ReplayFilter holds filtering criteria for run replay.
type ReplayFilter struct {
	RunID string
	From  time.Time // zero value = no lower bound
	To    time.Time // zero value = no upper bound
}

// ReplaySummary holds outcome counts and metadata for a replayed run.
type ReplaySummary struct {
	Total          int    `json:"total"`
	SuccessCount   int    `json:"success_count"`
	FailedCount    int    `json:"failed_count"`
	PlannedSteps   int    `json:"planned_steps"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	MasterReason   string `json:"master_reason"`
	// Linked is false when entries of the run disagree on the master reason.
	Linked bool `json:"linked"`
}

// ReplayResult holds filtered entries and summary for a run replay.
type ReplayResult struct {
	RunID   string        `json:"run_id"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay collects the entries of one run, optionally bounded in time.
// Lines that do not parse are skipped.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	result := &ReplayResult{
		RunID:   filter.RunID,
		Summary: ReplaySummary{Linked: true},
	}

	err := eachLine(path, func(_ int, line []byte) error {
		var entry AuditEntry
		if json.Unmarshal(line, &entry) != nil || entry.RunID != filter.RunID {
			return nil
		}
		if !filter.contains(entry.Time()) {
			return nil
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: replay %s: %w", filter.RunID, err)
	}
	return result, nil
}

func (f ReplayFilter) contains(ts time.Time) bool {
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	if ts.IsZero() {
		return false
	}
	return (f.From.IsZero() || !ts.Before(f.From)) && (f.To.IsZero() || !ts.After(f.To))
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++

	switch entry.Outcome {
	case model.OutcomeSuccess:
		s.SuccessCount++
	case model.OutcomeFailed:
		s.FailedCount++
	}

	if entry.Total > s.PlannedSteps {
		s.PlannedSteps = entry.Total
	}

	if s.Total == 1 {
		s.MasterReason = entry.MasterReason
	} else if entry.MasterReason != s.MasterReason {
		s.Linked = false
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
