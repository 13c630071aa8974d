package remediate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/model"
)

const (
	LineAllResolved = "All resolved."
	LineAborted     = "Aborted by user. No further steps. Manual override available."
)

// Sink receives every audit entry a step produces, including entries from
// runs that were discarded while the step was in flight.
type Sink interface {
	Record(entry audit.AuditEntry) error
}

// Sinks fans each entry out to several sinks. Every sink sees every entry
// even when an earlier one fails.
type Sinks []Sink

func (s Sinks) Record(entry audit.AuditEntry) error {
	var errs []error
	for _, sink := range s {
		if sink != nil {
			errs = append(errs, sink.Record(entry))
		}
	}
	return errors.Join(errs...)
}

// Snapshot is the externally observable progress of the active run.
type Snapshot struct {
	RunID   string          `json:"run_id,omitempty"`
	Current int             `json:"current"`
	Total   int             `json:"total"`
	Status  model.RunStatus `json:"status"`
}

// Request describes a bulk run to start.
type Request struct {
	Targets      []string
	MasterReason string
	// Executor overrides the orchestrator's executor for this run only.
	Executor StepExecutor
}

// Options configures an Orchestrator. Zero fields get defaults.
type Options struct {
	Executor StepExecutor
	Fixed    fixset.Set
	Sink     Sink
	Logger   *zap.Logger
	NewRunID func() string
}

type run struct {
	id      string
	targets []string
	reason  string
	exec    StepExecutor
	current int
	status  model.RunStatus
	entries []audit.AuditEntry
	lines   []string
	done    chan struct{}
}

// Orchestrator drives bulk runs. At most one run is active; each run has a
// single driver goroutine that issues its steps strictly one after the
// other, so a step is never issued before the previous result is recorded.
type Orchestrator struct {
	exec     StepExecutor
	fixed    fixset.Set
	sink     Sink
	logger   *zap.Logger
	newRunID func() string

	mu      sync.Mutex
	active  *run
	drivers []chan struct{}
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		exec:     opts.Executor,
		fixed:    opts.Fixed,
		sink:     opts.Sink,
		logger:   opts.Logger,
		newRunID: opts.NewRunID,
	}
	if o.exec == nil {
		o.exec = &Executor{}
	}
	if o.fixed == nil {
		o.fixed = fixset.NewMemory()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.newRunID == nil {
		o.newRunID = func() string { return "bulk-" + uuid.Must(uuid.NewV7()).String() }
	}
	return o
}

// Fixed returns the fixed-record set the orchestrator marks.
func (o *Orchestrator) Fixed() fixset.Set {
	return o.fixed
}

// Start begins a run over targets with masterReason attached to every
// step. Any previous run is discarded first. It is a no-op returning false
// when targets or masterReason is empty.
func (o *Orchestrator) Start(ctx context.Context, targets []string, masterReason string) (string, bool) {
	return o.StartRun(ctx, Request{Targets: targets, MasterReason: masterReason})
}

// StartRun is Start with a per-run executor.
func (o *Orchestrator) StartRun(ctx context.Context, req Request) (string, bool) {
	if len(req.Targets) == 0 || strings.TrimSpace(req.MasterReason) == "" {
		return "", false
	}
	exec := req.Executor
	if exec == nil {
		exec = o.exec
	}

	r := &run{
		id:      o.newRunID(),
		targets: append([]string(nil), req.Targets...),
		reason:  req.MasterReason,
		exec:    exec,
		status:  model.RunRunning,
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	if prev := o.active; prev != nil && prev.status == model.RunRunning {
		o.logger.Info("bulk run discarded", zap.String("run_id", prev.id), zap.Int("current", prev.current))
	}
	o.active = r
	o.drivers = append(o.drivers, r.done)
	o.mu.Unlock()

	o.logger.Info("bulk run started",
		zap.String("run_id", r.id),
		zap.Int("total", len(r.targets)),
		zap.String("master_reason", r.reason))

	go o.drive(ctx, r)
	return r.id, true
}

func (o *Orchestrator) drive(ctx context.Context, r *run) {
	defer close(r.done)

	for {
		o.mu.Lock()
		if o.active != r || r.status.Terminal() {
			o.mu.Unlock()
			return
		}
		if r.current >= len(r.targets) {
			r.status = model.RunCompleted
			r.lines = append(r.lines, LineAllResolved)
			o.mu.Unlock()
			o.logger.Info("bulk run completed", zap.String("run_id", r.id), zap.Int("total", len(r.targets)))
			return
		}
		req := StepRequest{
			RecordID:     r.targets[r.current],
			MasterReason: r.reason,
			RunID:        r.id,
			Index:        r.current,
			Total:        len(r.targets),
		}
		o.mu.Unlock()

		res, err := r.exec.ExecuteStep(ctx, req)
		if err != nil {
			o.interrupt(r, req, err)
			return
		}
		o.record(ctx, r, req, res)
	}
}

func (o *Orchestrator) interrupt(r *run, req StepRequest, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.status == model.RunRunning {
		r.status = model.RunAborted
		if o.active == r {
			r.lines = append(r.lines, fmt.Sprintf("Interrupted on log %d of %d: %v", req.Index+1, req.Total, err))
		}
	}
	o.logger.Warn("bulk step interrupted",
		zap.String("run_id", r.id),
		zap.String("record_id", req.RecordID),
		zap.Int("index", req.Index),
		zap.Error(err))
}

// record applies one step result. Entries always reach the sink and a
// successful outcome always marks the record fixed, since the step already
// ran. Only the active run's view and cursor are updated.
func (o *Orchestrator) record(ctx context.Context, r *run, req StepRequest, res StepResult) {
	fields := []zap.Field{
		zap.String("run_id", r.id),
		zap.String("record_id", req.RecordID),
		zap.Int("index", req.Index+1),
		zap.Int("total", req.Total),
	}

	if o.sink != nil {
		if err := o.sink.Record(res.Entry); err != nil {
			o.logger.Error("audit sink write failed", append(fields, zap.Error(err))...)
		}
	}
	if res.Success {
		if err := o.fixed.Mark(ctx, req.RecordID); err != nil {
			o.logger.Error("mark fixed failed", append(fields, zap.Error(err))...)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != r {
		o.logger.Info("stale step result dropped", append(fields, zap.String("outcome", string(res.Entry.Outcome)))...)
		return
	}

	r.entries = append(r.entries, res.Entry)

	switch {
	case r.status.Terminal():
		r.lines = append(r.lines, fmt.Sprintf("Late result for log %d of %d recorded: %s", req.Index+1, req.Total, res.Entry.Outcome))
		o.logger.Info("bulk step finished after run stopped", append(fields, zap.String("status", string(r.status)))...)
	case res.Success:
		r.current++
		r.lines = append(r.lines, fmt.Sprintf("Resolved log %d of %d (Resolved by AI Agent)", req.Index+1, req.Total))
		o.logger.Info("bulk step succeeded", fields...)
	default:
		r.status = model.RunHalted
		r.lines = append(r.lines, fmt.Sprintf("HALT: Fix failed on log %d of %d. Escalating; no further bulk steps.", req.Index+1, req.Total))
		o.logger.Warn("bulk run halted", fields...)
	}
}

// Abort stops the active run. Recorded entries are kept and a step already
// in flight is still recorded when it returns, but the cursor never moves
// again. It reports whether a run was aborted.
func (o *Orchestrator) Abort() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.active
	if r == nil || (r.status != model.RunRunning && r.status != model.RunHalted) {
		return false
	}
	r.status = model.RunAborted
	r.lines = append(r.lines, LineAborted)
	o.logger.Info("bulk run aborted", zap.String("run_id", r.id), zap.Int("current", r.current))
	return true
}

// Reset discards the active run. Results of its in-flight step are
// recognised by run ID and dropped from the view.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		o.logger.Debug("bulk run reset", zap.String("run_id", o.active.id))
	}
	o.active = nil
}

// Wait blocks until every driver started so far has exited, including
// drivers of discarded runs.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	pending := append([]chan struct{}(nil), o.drivers...)
	o.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.mu.Lock()
	live := o.drivers[:0]
	for _, done := range o.drivers {
		select {
		case <-done:
		default:
			live = append(live, done)
		}
	}
	o.drivers = live
	o.mu.Unlock()
	return nil
}

// Snapshot returns progress of the active run, or idle.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.active
	if r == nil {
		return Snapshot{Status: model.RunIdle}
	}
	return Snapshot{RunID: r.id, Current: r.current, Total: len(r.targets), Status: r.status}
}

// Entries returns the active run's audit entries in step order.
func (o *Orchestrator) Entries() []audit.AuditEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil
	}
	return append([]audit.AuditEntry(nil), o.active.entries...)
}

// Lines returns the active run's progress narration.
func (o *Orchestrator) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil
	}
	return append([]string(nil), o.active.lines...)
}

// MasterReason returns the active run's master reason.
func (o *Orchestrator) MasterReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ""
	}
	return o.active.reason
}
