package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/autoheal/internal/model"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Run: %s | No entries found.\n", result.RunID)
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	fmt.Fprintf(&b, "Run: %s | %s–%s UTC\n", result.RunID, first, last)
	fmt.Fprintf(&b, "Master reason: %s\n", truncate(result.Summary.MasterReason, 80))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		step := fmt.Sprintf("%d/%d", e.Index, e.Total)
		outcome := strings.ToUpper(string(e.Outcome))
		tag := ""
		if e.Outcome == model.OutcomeFailed {
			tag = "  [halt]"
		}
		fmt.Fprintf(&b, "%-10s %-7s %-8s %-38s%s\n",
			formatTimeOnly(e.Timestamp), step, outcome, truncate(e.RecordID, 38), tag)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.SuccessCount > 0 {
		parts = append(parts, fmt.Sprintf("%d success", s.SuccessCount))
	}
	if s.FailedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.FailedCount))
	}

	linkage := "linked"
	if !s.Linked {
		linkage = "UNLINKED"
	}
	return fmt.Sprintf("Summary: %s | %d of %d planned steps | master reason %s\n",
		strings.Join(parts, ", "), s.Total, s.PlannedSteps, linkage)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
