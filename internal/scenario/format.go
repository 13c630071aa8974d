package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders scenario results one case per line, grouped by file.
func FormatText(results []*RunResult) string {
	var b strings.Builder
	var cases, passed, badFiles int

	for _, r := range results {
		cases += r.Total
		passed += r.Passed
		if r.Failed > 0 {
			badFiles++
		}
		fmt.Fprintf(&b, "%s (%s)\n", r.Name, r.File)
		for _, c := range r.Cases {
			mark := "ok  "
			if !c.Passed {
				mark = "FAIL"
			}
			fmt.Fprintf(&b, "  %s case %d: %d targets -> %s", mark, c.Index, c.Targets, c.Actual)
			if len(c.Entries) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(c.Entries, " "))
			}
			if c.Reason != "" {
				fmt.Fprintf(&b, ": %s", c.Reason)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n%d/%d bulk runs as expected", passed, cases)
	if badFiles > 0 {
		fmt.Fprintf(&b, ", %d of %d files failing", badFiles, len(results))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatJSON renders scenario results as indented JSON.
func FormatJSON(results []*RunResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("scenario: encode results: %w", err)
	}
	return string(data), nil
}
