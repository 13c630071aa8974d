// Package session holds the operator's working context: the selected
// record, its fix proposal, the approval gate and the current run. Every
// operation goes through a Session; there is no package-level state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/alert"
	"github.com/ppiankov/autoheal/internal/approval"
	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/impact"
	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/ratelimit"
	"github.com/ppiankov/autoheal/internal/reasoning"
	"github.com/ppiankov/autoheal/internal/remediate"
	"github.com/ppiankov/autoheal/internal/report"
)

var (
	ErrNoSelection     = errors.New("session: no record selected")
	ErrUnknownRecord   = errors.New("session: unknown record")
	ErrNoProposal      = errors.New("session: no successful fix proposal")
	ErrApprovalPending = errors.New("session: second approval required")
	ErrNoMatches       = errors.New("session: no matching records")
	ErrBusy            = errors.New("session: execution in progress")
	ErrRestartBudget   = errors.New("session: restart budget exhausted")
)

// State is the operator-facing execution state.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateDone           State = "done"
	StateHaltedEscalate State = "halted_escalate"
	StateAborted        State = "aborted"
)

type mode int

const (
	modeNone mode = iota
	modeSingle
	modeBulk
)

// Options wires a Session. Zero fields get defaults.
type Options struct {
	Explainer    reasoning.Explainer
	Config       *policy.Holder
	Orchestrator *remediate.Orchestrator
	Approvals    *approval.Store
	Alerts       *alert.Dispatcher
	// Restarts counts node restarts against the config's restart_limit.
	// Sessions sharing a tracker share the budget.
	Restarts *ratelimit.Tracker
	Logger   *zap.Logger
}

// Session is safe for concurrent use.
type Session struct {
	explainer reasoning.Explainer
	config    *policy.Holder
	orch      *remediate.Orchestrator
	approvals *approval.Store
	alerts    *alert.Dispatcher
	restarts  *ratelimit.Tracker
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	records    []model.Record
	selected   *model.Record
	result     *reasoning.Result
	gate       approval.Gate
	mode       mode
	runID      string
	single     State
	lines      []string
	resolved   int
	fixCancel  context.CancelFunc
	fixDone    chan struct{}
	committed  bool
	generation uint64
}

// New creates a session over records.
func New(records []model.Record, opts Options) *Session {
	s := &Session{
		explainer: opts.Explainer,
		config:    opts.Config,
		orch:      opts.Orchestrator,
		approvals: opts.Approvals,
		alerts:    opts.Alerts,
		restarts:  opts.Restarts,
		logger:    opts.Logger,
		now:       time.Now,
		records:   append([]model.Record(nil), records...),
		single:    StateIdle,
	}
	if s.explainer == nil {
		s.explainer = reasoning.SOPExplainer{}
	}
	if s.config == nil {
		s.config = policy.NewHolder(policy.DefaultConfig(), "")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.restarts == nil {
		s.restarts = ratelimit.NewTracker()
	}
	if s.orch == nil {
		s.orch = remediate.New(remediate.Options{Logger: s.logger})
	}
	return s
}

// Fixed returns the fixed-record set.
func (s *Session) Fixed() fixset.Set {
	return s.orch.Fixed()
}

// Records returns the records the session works on.
func (s *Session) Records() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Record(nil), s.records...)
}

// AddRecords appends newly arrived records.
func (s *Session) AddRecords(recs ...model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
}

// Select makes id the current record. Choosing a different record drops
// the proposal, the approval and any run; a running step's result is then
// ignored.
func (s *Session) Select(id string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.records {
		if s.records[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Record{}, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	rec := s.records[idx]
	if s.selected != nil && s.selected.ID == id {
		return rec, nil
	}

	s.resetLocked()
	s.selected = &rec
	s.logger.Debug("record selected", zap.String("record_id", id))
	return rec, nil
}

func (s *Session) resetLocked() {
	if s.fixCancel != nil {
		s.fixCancel()
		s.fixCancel = nil
	}
	s.orch.Reset()
	s.generation++
	s.result = nil
	s.gate = approval.Gate{}
	s.mode = modeNone
	s.runID = ""
	s.single = StateIdle
	s.committed = false
	s.lines = nil
	s.resolved = 0
}

// Troubleshoot runs the reasoning step for the selected record. A failed
// explanation is reported through Result.Failure, not the error.
func (s *Session) Troubleshoot(ctx context.Context) (reasoning.Result, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return reasoning.Result{}, ErrNoSelection
	}
	rec := *s.selected
	all := append([]model.Record(nil), s.records...)
	gen := s.generation
	s.mu.Unlock()

	cfg := s.config.Load().Config
	res := reasoning.Troubleshoot(ctx, s.explainer, rec, all, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return res, nil
	}

	s.result = &res
	s.gate = approval.Gate{}
	if !res.OK() {
		s.logger.Warn("troubleshoot failed", zap.String("record_id", rec.ID), zap.Error(res.Failure))
		return res, nil
	}

	s.gate = approval.NewGate(rec, res.Proposal.Kind, cfg.CriticalUnit)
	if !s.gate.Required {
		return res, nil
	}
	reason := fmt.Sprintf("%s of critical unit %s", res.Proposal.Kind, rec.NodeID)
	if s.approvals != nil {
		if err := s.approvals.Request(approval.KeyFor(rec.ID), reason, rec.ID); err != nil {
			s.logger.Error("approval request failed", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
	s.alerts.Dispatch(alert.Event{
		Type:       alert.EventApprovalRequired,
		RecordID:   rec.ID,
		Node:       rec.NodeID,
		Reason:     reason,
		ConfigHash: s.config.Load().Hash,
	})
	return res, nil
}

// SetApprover records the second approver's name before confirmation.
func (s *Session) SetApprover(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gate.Confirmed {
		s.gate.Approver = name
	}
}

// ConfirmApproval confirms the gate with the approver set by SetApprover.
func (s *Session) ConfirmApproval() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return ErrNoSelection
	}
	if err := s.gate.Confirm(s.gate.Approver); err != nil {
		return err
	}
	if s.approvals != nil {
		if err := s.approvals.Approve(approval.KeyFor(s.selected.ID), s.gate.Approver, 0); err != nil {
			s.logger.Error("approval ledger update failed", zap.String("record_id", s.selected.ID), zap.Error(err))
		}
	}
	s.logger.Info("second approval confirmed",
		zap.String("record_id", s.selected.ID),
		zap.String("approver", s.gate.Approver))
	return nil
}

// syncApprovalLocked confirms the gate from an approval granted through
// the ledger by another process, such as `autoheal approve`.
func (s *Session) syncApprovalLocked() bool {
	if s.approvals == nil {
		return false
	}
	key := approval.KeyFor(s.selected.ID)
	if status, err := s.approvals.Check(key); err != nil || status != approval.StatusApproved {
		return false
	}
	a, err := s.approvals.Get(key)
	if err != nil || s.gate.Confirm(a.Approver) != nil {
		return false
	}
	s.logger.Info("second approval confirmed from ledger",
		zap.String("record_id", s.selected.ID),
		zap.String("approver", a.Approver))
	return true
}

// CheckExecute reports why ExecuteFix would be a no-op, or nil.
func (s *Session) CheckExecute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(1)
}

// CheckApplyAll reports why ApplyToAll would be a no-op, or nil.
func (s *Session) CheckApplyAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 1
	if s.result != nil {
		n += len(s.result.Similar)
	}
	if err := s.checkLocked(n); err != nil {
		return err
	}
	if len(s.result.Similar) == 0 {
		return ErrNoMatches
	}
	return nil
}

// checkLocked validates an execution touching n records.
func (s *Session) checkLocked(n int) error {
	if s.selected == nil {
		return ErrNoSelection
	}
	if s.result == nil || !s.result.OK() {
		return ErrNoProposal
	}
	if s.gate.Blocks() && !s.syncApprovalLocked() {
		return ErrApprovalPending
	}
	if s.stateLocked() == StateRunning {
		return ErrBusy
	}
	if s.result.Proposal.Kind == model.FixRestart {
		limit := s.config.Load().Config.RestartLimit
		if res := ratelimit.Check(s.restarts, s.selected.NodeID, n, limit, s.now()); res.Exceeded {
			return fmt.Errorf("%w: %s", ErrRestartBudget, res.Reason)
		}
	}
	return nil
}

func (s *Session) recordRestartsLocked(n int) {
	if s.result.Proposal.Kind != model.FixRestart {
		return
	}
	limit := s.config.Load().Config.RestartLimit
	ratelimit.Record(s.restarts, s.selected.NodeID, n, limit, s.now())
}

// ExecuteFix applies the proposal to the selected record only. It returns
// false without side effects when CheckExecute fails.
func (s *Session) ExecuteFix(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkLocked(1) != nil {
		return false
	}

	s.orch.Reset()
	rec := *s.selected
	kind := s.result.Proposal.Kind
	cfg := s.config.Load().Config
	fixCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	gen := s.generation

	s.mode = modeSingle
	s.single = StateRunning
	s.lines = nil
	s.fixCancel = cancel
	s.fixDone = done
	s.committed = false
	s.consumeLocked()
	s.recordRestartsLocked(1)
	s.notifyEscalationLocked("")

	runner := &remediate.FixRunner{
		Interval: cfg.FixStepInterval,
		Fixed:    s.Fixed(),
		Logger:   s.logger,
		Commit: func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen != s.generation || s.single != StateRunning {
				return false
			}
			s.committed = true
			return true
		},
	}
	go func() {
		defer close(done)
		defer cancel()
		_, err := runner.ExecuteFix(fixCtx, rec, kind, func(line string) {
			s.mu.Lock()
			if gen == s.generation {
				s.lines = append(s.lines, line)
			}
			s.mu.Unlock()
		})

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation || s.single != StateRunning {
			return
		}
		if err != nil {
			s.single = StateAborted
			return
		}
		s.single = StateDone
		s.resolved = 1
	}()
	return true
}

// ApplyToAll starts a bulk run over the selected record and its similar
// records, with the proposal's justification as master reason. It returns
// false without side effects when CheckApplyAll fails.
func (s *Session) ApplyToAll(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil || len(s.result.Similar) == 0 || s.checkLocked(1+len(s.result.Similar)) != nil {
		return false
	}

	targets := reasoning.Targets(*s.selected, s.result.Similar)
	runID, ok := s.orch.StartRun(ctx, remediate.Request{
		Targets:      targets,
		MasterReason: s.result.Proposal.Justification,
		Executor:     remediate.NewExecutor(s.config.Load()),
	})
	if !ok {
		return false
	}
	s.mode = modeBulk
	s.runID = runID
	s.lines = nil
	s.consumeLocked()
	s.recordRestartsLocked(len(targets))
	s.notifyEscalationLocked(runID)
	return true
}

func (s *Session) notifyEscalationLocked(runID string) {
	if s.result.Proposal.Kind != model.FixEscalate {
		return
	}
	s.alerts.Dispatch(alert.Event{
		Type:       alert.EventEscalated,
		RecordID:   s.selected.ID,
		Node:       s.selected.NodeID,
		RunID:      runID,
		Reason:     s.result.Proposal.Justification,
		ConfigHash: s.config.Load().Hash,
	})
}

func (s *Session) consumeLocked() {
	if !s.gate.Required || s.approvals == nil {
		return
	}
	if err := s.approvals.Consume(approval.KeyFor(s.selected.ID)); err != nil {
		s.logger.Warn("approval consume failed", zap.String("record_id", s.selected.ID), zap.Error(err))
	}
}

// Abort stops the current single fix or bulk run.
func (s *Session) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case modeSingle:
		// Once committed the record is being marked and the fix completes.
		if s.single != StateRunning || s.committed {
			return false
		}
		s.fixCancel()
		s.single = StateAborted
		s.lines = append(s.lines, remediate.LineAborted)
		return true
	case modeBulk:
		return s.orch.Abort()
	}
	return false
}

// Dismiss clears a finished, halted or aborted execution and returns the
// session to idle. The selection and proposal are kept.
func (s *Session) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() == StateRunning {
		return
	}
	s.orch.Reset()
	s.mode = modeNone
	s.runID = ""
	s.single = StateIdle
	s.committed = false
	s.lines = nil
	s.resolved = 0
}

// Wait blocks until the current single fix and all bulk drivers finish.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.fixDone
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := s.orch.Wait(ctx); err != nil {
		return err
	}
	s.alerts.Wait()
	return nil
}

func (s *Session) stateLocked() State {
	switch s.mode {
	case modeSingle:
		return s.single
	case modeBulk:
		snap := s.orch.Snapshot()
		if snap.RunID != s.runID {
			return StateIdle
		}
		switch snap.Status {
		case model.RunRunning:
			return StateRunning
		case model.RunCompleted:
			return StateDone
		case model.RunHalted:
			return StateHaltedEscalate
		case model.RunAborted:
			return StateAborted
		}
	}
	return StateIdle
}

// View is a read-only picture of the session.
type View struct {
	Selected     *model.Record      `json:"selected,omitempty"`
	Proposal     *model.Proposal    `json:"proposal,omitempty"`
	Failure      string             `json:"failure,omitempty"`
	Similar      []string           `json:"similar,omitempty"`
	Impact       *impact.Assessment `json:"impact,omitempty"`
	Projection   *impact.Projection `json:"projection,omitempty"`
	Gate         approval.Gate      `json:"gate"`
	State        State              `json:"state"`
	Progress     remediate.Snapshot `json:"progress"`
	// MasterReason links every entry of the bulk run.
	MasterReason string             `json:"master_reason,omitempty"`
	Lines        []string           `json:"lines,omitempty"`
	Entries      []audit.AuditEntry `json:"entries,omitempty"`
	Fixed        []string           `json:"fixed"`
}

// View returns the current session picture.
func (s *Session) View(ctx context.Context) (View, error) {
	s.mu.Lock()
	v := View{
		Gate:  s.gate,
		State: s.stateLocked(),
		Lines: append([]string(nil), s.lines...),
	}
	if s.selected != nil {
		rec := *s.selected
		v.Selected = &rec
	}
	if s.result != nil {
		im := s.result.Impact
		v.Impact = &im
		v.Similar = append([]string(nil), s.result.Similar...)
		if s.result.Failure != nil {
			v.Failure = s.result.Failure.Message
		}
		if p := s.result.Proposal; p != nil && v.Selected != nil {
			prop := *p
			v.Proposal = &prop
			cfg := s.config.Load().Config
			if pr, ok := impact.Project(p.Kind, v.Selected.NodeID, cfg.CriticalUnit, 1+len(v.Similar)); ok {
				v.Projection = &pr
			}
		}
	}
	if s.mode == modeBulk {
		v.Progress = s.orch.Snapshot()
		v.MasterReason = s.orch.MasterReason()
		v.Lines = s.orch.Lines()
		v.Entries = s.orch.Entries()
	} else {
		v.Progress = remediate.Snapshot{Status: model.RunIdle}
	}
	s.mu.Unlock()

	fixed, err := s.Fixed().List(ctx)
	if err != nil {
		return v, fmt.Errorf("session: list fixed: %w", err)
	}
	v.Fixed = fixed
	return v, nil
}

// Report returns the audit report for a finished execution. ok is false
// unless the state is done.
func (s *Session) Report(now time.Time) (report.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() != StateDone {
		return report.Report{}, false
	}

	r := report.Report{Generated: now}
	if s.result != nil {
		r.SLAMitigated = s.result.Impact.AffectedSLA
	}
	switch s.mode {
	case modeSingle:
		r.ResolvedCount = s.resolved
	case modeBulk:
		r.ResolvedCount = s.orch.Snapshot().Total
		r.AuditLines = audit.Lines(s.orch.Entries())
	}
	return r, true
}
