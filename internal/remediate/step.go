// Package remediate executes fixes: single-record fixes and guarded bulk
// runs that apply one justification to a list of matching records, one
// step at a time, halting on the first failed step.
package remediate

import (
	"context"
	"time"

	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
)

// StepRequest identifies one step of a bulk run. Index is 0-based.
type StepRequest struct {
	RecordID     string
	MasterReason string
	RunID        string
	Index        int
	Total        int
}

// StepResult is the outcome of one step. Success false always comes with
// HaltAndEscalate true.
type StepResult struct {
	Success         bool
	Entry           audit.AuditEntry
	HaltAndEscalate bool
}

// StepExecutor performs one bulk step. A non-nil error means the step was
// interrupted before an outcome existed; no entry is produced.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error)
}

// Executor is the default StepExecutor. The outcome is decided by Policy
// after a simulated Latency.
type Executor struct {
	Policy  policy.FailurePolicy
	Latency time.Duration
	Builder audit.Builder
}

// NewExecutor builds an executor from a config snapshot.
func NewExecutor(snap policy.Snapshot) *Executor {
	cfg := snap.Config
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}
	return &Executor{
		Policy:  cfg.Policy(),
		Latency: cfg.StepLatency,
		Builder: audit.Builder{ConfigHash: snap.Hash},
	}
}

func (e *Executor) ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error) {
	if e.Latency > 0 {
		t := time.NewTimer(e.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return StepResult{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	p := e.Policy
	if p == nil {
		p = policy.Default()
	}

	if p.ShouldFail(req.Index, req.Total) {
		return StepResult{
			Entry:           e.Builder.Build(req.MasterReason, req.RecordID, req.RunID, req.Index, req.Total, model.OutcomeFailed, audit.HaltNote),
			HaltAndEscalate: true,
		}, nil
	}
	return StepResult{
		Success: true,
		Entry:   e.Builder.Build(req.MasterReason, req.RecordID, req.RunID, req.Index, req.Total, model.OutcomeSuccess, ""),
	}, nil
}
