package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/autoheal/internal/impact"
	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
)

// Failure is the typed failure of the explanation step.
type Failure struct {
	RecordID string `json:"record_id"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("troubleshoot %s: %s", f.RecordID, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result holds exactly one of Proposal or Failure.
type Result struct {
	Proposal *model.Proposal   `json:"proposal,omitempty"`
	Failure  *Failure          `json:"failure,omitempty"`
	Similar  []string          `json:"similar,omitempty"`
	Impact   impact.Assessment `json:"impact"`
}

// OK reports whether the result carries a proposal.
func (r Result) OK() bool {
	return r.Proposal != nil && r.Failure == nil
}

// Troubleshoot runs the explainer for rec and classifies the proposal.
// Errors and panics from the explainer become a Failure. all is the
// current record list used to compute the similarity set; it may be nil.
func Troubleshoot(ctx context.Context, ex Explainer, rec model.Record, all []model.Record, cfg *policy.Config) (res Result) {
	res.Impact = impact.Analyze(rec.WorkflowName)

	defer func() {
		if r := recover(); r != nil {
			res.Proposal = nil
			res.Similar = nil
			res.Failure = &Failure{RecordID: rec.ID, Message: fmt.Sprintf("explainer panicked: %v", r)}
		}
	}()

	if ex == nil {
		res.Failure = &Failure{RecordID: rec.ID, Message: "no explainer configured"}
		return res
	}

	e, err := ex.Explain(ctx, rec)
	if err != nil {
		res.Failure = &Failure{RecordID: rec.ID, Message: err.Error(), Err: err}
		return res
	}
	if strings.TrimSpace(e.Text) == "" {
		res.Failure = &Failure{RecordID: rec.ID, Message: "empty explanation"}
		return res
	}

	res.Proposal = &model.Proposal{
		RecordID:      rec.ID,
		Justification: e.Text,
		Confidence:    e.Confidence,
		Steps:         e.Steps,
		ToolTrace:     e.ToolTrace,
		Kind:          policy.ClassifyFix(rec, e.Text, cfg),
	}
	res.Similar = Similar(rec, all)
	return res
}

// Similar returns the IDs of records sharing rec's error code and node,
// excluding rec itself, in input order.
func Similar(rec model.Record, all []model.Record) []string {
	var ids []string
	for _, r := range all {
		if r.ID != rec.ID && rec.SameClass(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Targets returns the bulk target list for a selection: the record itself
// followed by its similar records.
func Targets(rec model.Record, similar []string) []string {
	return append([]string{rec.ID}, similar...)
}
