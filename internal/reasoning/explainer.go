// Package reasoning turns a grid error record into a fix proposal.
//
// The explanation step is an external collaborator: it may be a language
// model or the offline SOP knowledge base. Troubleshoot is the boundary
// that converts any failure of that collaborator, including a panic, into
// a typed Failure so callers never see a half-built proposal.
package reasoning

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/autoheal/internal/model"
)

// Explanation is what an Explainer returns for one record.
type Explanation struct {
	Text       string   `json:"text"`
	Confidence int      `json:"confidence"`
	Steps      []string `json:"steps,omitempty"`
	ToolTrace  []string `json:"tool_trace,omitempty"`
}

// Explainer produces a remediation explanation for a record.
type Explainer interface {
	Explain(ctx context.Context, rec model.Record) (Explanation, error)
}

// SOPExplainer answers from the built-in knowledge base. It is
// deterministic and needs no network.
type SOPExplainer struct{}

func (SOPExplainer) Explain(ctx context.Context, rec model.Record) (Explanation, error) {
	if err := ctx.Err(); err != nil {
		return Explanation{}, err
	}

	sop, known := LookupSOP(rec.ErrorCode)
	trace := []string{
		fmt.Sprintf("get_sop_guidance(%q) => %s", rec.ErrorCode, sop.Title),
	}

	var text string
	confidence := 55
	switch {
	case !known:
		text = fmt.Sprintf("No SOP matches %s on %s. Restart the worker on %s and review the full session log.",
			rec.ErrorCode, rec.WorkflowName, rec.NodeID)
	case sop.Escalates:
		text = fmt.Sprintf("%s on %s. Per SOP this is owned by the batch team: %s",
			sop.Title, rec.WorkflowName, sop.Escalation)
		confidence = 94
	default:
		text = fmt.Sprintf("%s on %s. Per SOP, restart the worker process on %s, then verify the workflow state.",
			sop.Title, rec.WorkflowName, rec.NodeID)
		confidence = 88
		trace = append(trace, simulateFix("restart node", rec.NodeID))
	}
	if known && strings.Contains(rec.RawLog, rec.ErrorCode) {
		confidence += 3
	}

	return Explanation{
		Text:       text,
		Confidence: min(confidence, 100),
		Steps:      append([]string(nil), sop.Steps...),
		ToolTrace:  trace,
	}, nil
}

var simulatable = regexp.MustCompile(`(?i)restart|check|verify|validate|permission`)

// simulateFix is a dry run of a remediation action. Actions outside the
// SOP vocabulary fail.
func simulateFix(action, target string) string {
	on := ""
	if target != "" {
		on = " on " + target
	}
	if simulatable.MatchString(action) {
		return fmt.Sprintf("simulate_fix(%q) => %s%s SUCCESS", action, action, on)
	}
	return fmt.Sprintf("simulate_fix(%q) => %s FAILED (action not in SOP)", action, action)
}

var (
	explanationRe = regexp.MustCompile(`(?is)Explanation:\s*(.*?)(?:Confidence Score:|$)`)
	scoreRe       = regexp.MustCompile(`(?i)Confidence Score:\s*(\d+)`)
)

const defaultConfidence = 70

// ParseExplanation extracts the explanation text and confidence score from
// free-form model output. Missing scores default to 70; scores are clamped
// to 0..100. Output without an Explanation marker is used verbatim.
func ParseExplanation(raw string) Explanation {
	e := Explanation{Confidence: defaultConfidence}
	if m := explanationRe.FindStringSubmatch(raw); m != nil {
		e.Text = strings.TrimSpace(m[1])
	}
	if m := scoreRe.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			e.Confidence = max(0, min(100, n))
		}
	}
	if e.Text == "" {
		e.Text = strings.TrimSpace(raw)
	}
	return e
}
