package audit

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/autoheal/internal/model"
)

// VerifyResult is the outcome of checking an audit log.
type VerifyResult struct {
	Valid bool `json:"valid"`
	Lines int  `json:"lines"`
	Runs  int  `json:"runs"`
	// Halted counts runs whose trail ends in a failed step.
	Halted    int    `json:"halted"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

type runTrail struct {
	index  int
	total  int
	reason string
	halted bool
}

type lineError struct {
	line int
	msg  string
}

func (e *lineError) Error() string { return e.msg }

// Verify checks the hash chain of the log at path and, per run, that steps
// are numbered 1, 2, 3... with one total and one master reason, and that
// nothing follows a failed step. It stops at the first violation.
func Verify(path string) VerifyResult {
	expected := GenesisHash
	runs := make(map[string]*runTrail)
	lines := 0

	err := eachLine(path, func(n int, line []byte) error {
		lines = n
		var e AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return &lineError{n, fmt.Sprintf("parse error: %v", err)}
		}
		if e.PrevHash != expected {
			if n == 1 {
				return &lineError{n, fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", e.PrevHash)}
			}
			return &lineError{n, fmt.Sprintf("hash mismatch: expected %s, got %s", expected, e.PrevHash)}
		}
		expected = HashLine(line)

		r, seen := runs[e.RunID]
		if !seen {
			r = &runTrail{total: e.Total, reason: e.MasterReason}
			runs[e.RunID] = r
		}
		switch {
		case r.halted:
			return &lineError{n, fmt.Sprintf("run %s: step %d recorded after halt", e.RunID, e.Index)}
		case e.Index != r.index+1:
			return &lineError{n, fmt.Sprintf("run %s: step %d follows step %d", e.RunID, e.Index, r.index)}
		case e.Total != r.total:
			return &lineError{n, fmt.Sprintf("run %s: total changed from %d to %d", e.RunID, r.total, e.Total)}
		case e.MasterReason != r.reason:
			return &lineError{n, fmt.Sprintf("run %s: master reason changed at step %d", e.RunID, e.Index)}
		}
		r.index = e.Index
		r.halted = e.Outcome == model.OutcomeFailed
		return nil
	})

	var le *lineError
	switch {
	case errors.As(err, &le):
		return VerifyResult{Lines: lines, Error: le.msg, ErrorLine: le.line}
	case err != nil:
		return VerifyResult{Error: fmt.Sprintf("read: %v", err)}
	}

	res := VerifyResult{Valid: true, Lines: lines, Runs: len(runs)}
	for _, r := range runs {
		if r.halted {
			res.Halted++
		}
	}
	return res
}
