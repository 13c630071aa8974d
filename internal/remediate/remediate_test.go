package remediate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memSink struct {
	mu      sync.Mutex
	entries []audit.AuditEntry
}

func (s *memSink) Record(e audit.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) all() []audit.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.AuditEntry(nil), s.entries...)
}

// gateExecutor blocks every step until released.
type gateExecutor struct {
	inner   StepExecutor
	started chan StepRequest
	release chan struct{}
	calls   atomic.Int32
}

func newGate(inner StepExecutor) *gateExecutor {
	return &gateExecutor{
		inner:   inner,
		started: make(chan StepRequest, 16),
		release: make(chan struct{}),
	}
}

func (g *gateExecutor) ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error) {
	g.calls.Add(1)
	g.started <- req
	<-g.release
	return g.inner.ExecuteStep(ctx, req)
}

func newTestOrchestrator(t *testing.T, exec StepExecutor) (*Orchestrator, *fixset.Memory, *memSink) {
	t.Helper()
	fixed := fixset.NewMemory()
	sink := &memSink{}
	o := New(Options{Executor: exec, Fixed: fixed, Sink: sink})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Wait(ctx)
	})
	return o, fixed, sink
}

func waitRun(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func outcomes(entries []audit.AuditEntry) []model.Outcome {
	out := make([]model.Outcome, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Outcome)
	}
	return out
}

func fixedIDs(t *testing.T, s fixset.Set) []string {
	t.Helper()
	ids, err := s.List(context.Background())
	require.NoError(t, err)
	return ids
}

func TestExecutorDefaultPolicy(t *testing.T) {
	e := &Executor{}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		res, err := e.ExecuteStep(ctx, StepRequest{RecordID: "r", MasterReason: "m", RunID: "run", Index: i, Total: 6})
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Entry.Index)
		assert.Equal(t, 6, res.Entry.Total)
		if i == 2 {
			assert.False(t, res.Success)
			assert.True(t, res.HaltAndEscalate)
			assert.Equal(t, model.OutcomeFailed, res.Entry.Outcome)
			assert.Equal(t, audit.HaltNote, res.Entry.Note)
		} else {
			assert.True(t, res.Success)
			assert.False(t, res.HaltAndEscalate)
			assert.Equal(t, model.OutcomeSuccess, res.Entry.Outcome)
			assert.Empty(t, res.Entry.Note)
		}
	}
}

func TestExecutorCancelledDuringLatency(t *testing.T) {
	e := &Executor{Latency: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ExecuteStep(ctx, StepRequest{RecordID: "r", MasterReason: "m", RunID: "run", Total: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExecutorFromSnapshot(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.FailAtIndex = -1
	cfg.StepLatency = 0

	e := NewExecutor(policy.Snapshot{Config: cfg, Hash: "sha256:abc"})
	res, err := e.ExecuteStep(context.Background(), StepRequest{RecordID: "r", MasterReason: "m", RunID: "run", Index: 2, Total: 5})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sha256:abc", res.Entry.ConfigHash)
}

func TestRunHaltsAfterThirdStep(t *testing.T) {
	o, fixed, sink := newTestOrchestrator(t, &Executor{})

	runID, ok := o.Start(context.Background(), []string{"A", "B", "C", "D", "E"}, "restart per SOP X")
	require.True(t, ok)
	waitRun(t, o)

	snap := o.Snapshot()
	assert.Equal(t, Snapshot{RunID: runID, Current: 2, Total: 5, Status: model.RunHalted}, snap)

	entries := o.Entries()
	require.Len(t, entries, 3)
	if diff := cmp.Diff([]model.Outcome{model.OutcomeSuccess, model.OutcomeSuccess, model.OutcomeFailed}, outcomes(entries)); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	for i, e := range entries {
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, "restart per SOP X", e.MasterReason)
		assert.Equal(t, runID, e.RunID)
	}
	assert.Equal(t, []string{"A", "B"}, fixedIDs(t, fixed))
	assert.Len(t, sink.all(), 3)

	lines := o.Lines()
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "HALT: Fix failed on log 3 of 5"))
}

func TestRunCompletesBelowFailIndex(t *testing.T) {
	o, fixed, _ := newTestOrchestrator(t, &Executor{})

	_, ok := o.Start(context.Background(), []string{"A", "B"}, "restart per SOP X")
	require.True(t, ok)
	waitRun(t, o)

	snap := o.Snapshot()
	assert.Equal(t, model.RunCompleted, snap.Status)
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, []model.Outcome{model.OutcomeSuccess, model.OutcomeSuccess}, outcomes(o.Entries()))
	assert.Equal(t, []string{"A", "B"}, fixedIDs(t, fixed))

	lines := o.Lines()
	assert.Equal(t, LineAllResolved, lines[len(lines)-1])
}

func TestHaltExactnessForAnyLength(t *testing.T) {
	for n := 3; n <= 9; n++ {
		o, fixed, _ := newTestOrchestrator(t, &Executor{})
		targets := make([]string, n)
		for i := range targets {
			targets[i] = string(rune('A' + i))
		}

		_, ok := o.Start(context.Background(), targets, "reason")
		require.True(t, ok)
		waitRun(t, o)

		entries := o.Entries()
		require.Len(t, entries, 3, "n=%d", n)
		assert.Equal(t, model.OutcomeFailed, entries[2].Outcome)
		assert.Equal(t, model.RunHalted, o.Snapshot().Status)
		assert.Equal(t, targets[:2], fixedIDs(t, fixed))
	}
}

func TestStepTimestampsNonDecreasing(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &Executor{Policy: policy.Never{}, Latency: time.Millisecond})

	_, ok := o.Start(context.Background(), []string{"A", "B", "C", "D", "E", "F"}, "reason")
	require.True(t, ok)
	waitRun(t, o)

	entries := o.Entries()
	require.Len(t, entries, 6)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Time().Before(entries[i-1].Time()), "entry %d precedes entry %d", i+1, i)
	}
}

type countingExecutor struct {
	inner    StepExecutor
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *countingExecutor) ExecuteStep(ctx context.Context, req StepRequest) (StepResult, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return c.inner.ExecuteStep(ctx, req)
}

func TestAtMostOneStepInFlight(t *testing.T) {
	exec := &countingExecutor{inner: &Executor{Policy: policy.Never{}, Latency: 2 * time.Millisecond}}
	o, _, _ := newTestOrchestrator(t, exec)

	_, ok := o.Start(context.Background(), []string{"A", "B", "C", "D", "E", "F", "G", "H"}, "reason")
	require.True(t, ok)
	waitRun(t, o)

	assert.Equal(t, int32(1), exec.maxSeen.Load())
	assert.Len(t, o.Entries(), 8)
}

func TestStartPreconditionsNoOp(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &Executor{})

	_, ok := o.Start(context.Background(), nil, "reason")
	assert.False(t, ok)
	_, ok = o.Start(context.Background(), []string{"A"}, "   ")
	assert.False(t, ok)

	assert.Equal(t, Snapshot{Status: model.RunIdle}, o.Snapshot())
	assert.Nil(t, o.Entries())
	assert.False(t, o.Abort())
}

func TestAbortKeepsInFlightResultWithoutProgress(t *testing.T) {
	gate := newGate(&Executor{Policy: policy.Never{}})
	o, fixed, _ := newTestOrchestrator(t, gate)

	runID, ok := o.Start(context.Background(), []string{"A", "B", "C"}, "reason")
	require.True(t, ok)

	req := <-gate.started
	assert.Equal(t, "A", req.RecordID)

	require.True(t, o.Abort())
	assert.Equal(t, model.RunAborted, o.Snapshot().Status)

	gate.release <- struct{}{}
	waitRun(t, o)

	snap := o.Snapshot()
	assert.Equal(t, Snapshot{RunID: runID, Current: 0, Total: 3, Status: model.RunAborted}, snap)
	entries := o.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].RecordID)
	assert.Equal(t, int32(1), gate.calls.Load())
	assert.Equal(t, []string{"A"}, fixedIDs(t, fixed))
	assert.Contains(t, o.Lines(), LineAborted)
}

func TestAbortIsDistinctFromHalt(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &Executor{})
	_, ok := o.Start(context.Background(), []string{"A", "B", "C", "D"}, "reason")
	require.True(t, ok)
	waitRun(t, o)
	assert.Equal(t, model.RunHalted, o.Snapshot().Status)

	require.True(t, o.Abort())
	assert.Equal(t, model.RunAborted, o.Snapshot().Status)
	assert.Len(t, o.Entries(), 3)
	assert.False(t, o.Abort())
}

func TestResetDropsStaleResult(t *testing.T) {
	gate := newGate(&Executor{Policy: policy.Never{}})
	o, fixed, sink := newTestOrchestrator(t, gate)

	first, ok := o.Start(context.Background(), []string{"X", "Y"}, "first reason")
	require.True(t, ok)
	<-gate.started

	o.Reset()
	assert.Equal(t, model.RunIdle, o.Snapshot().Status)

	second, ok := o.StartRun(context.Background(), Request{
		Targets:      []string{"A", "B"},
		MasterReason: "second reason",
		Executor:     &Executor{Policy: policy.Never{}},
	})
	require.True(t, ok)
	require.NotEqual(t, first, second)

	gate.release <- struct{}{}
	waitRun(t, o)

	snap := o.Snapshot()
	assert.Equal(t, second, snap.RunID)
	assert.Equal(t, model.RunCompleted, snap.Status)
	for _, e := range o.Entries() {
		assert.Equal(t, second, e.RunID)
		assert.Equal(t, "second reason", e.MasterReason)
	}
	assert.Len(t, o.Entries(), 2)
	assert.Equal(t, int32(1), gate.calls.Load(), "discarded run must not issue further steps")

	var staleSeen bool
	for _, e := range sink.all() {
		if e.RunID == first {
			staleSeen = true
		}
	}
	assert.True(t, staleSeen, "durable sink should still receive the stale entry")
	assert.ElementsMatch(t, []string{"X", "A", "B"}, fixedIDs(t, fixed))
}

func TestCancelledContextAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o, fixed, _ := newTestOrchestrator(t, &Executor{Latency: time.Hour})

	_, ok := o.Start(ctx, []string{"A", "B"}, "reason")
	require.True(t, ok)
	cancel()
	waitRun(t, o)

	assert.Equal(t, model.RunAborted, o.Snapshot().Status)
	assert.Empty(t, o.Entries())
	assert.Empty(t, fixedIDs(t, fixed))
}

func TestDefaultRunIDs(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &Executor{})
	a, _ := o.Start(context.Background(), []string{"A"}, "reason")
	waitRun(t, o)
	b, _ := o.Start(context.Background(), []string{"A"}, "reason")
	waitRun(t, o)

	assert.True(t, strings.HasPrefix(a, "bulk-"))
	assert.NotEqual(t, a, b)
}

func TestExecuteFixNarration(t *testing.T) {
	fixed := fixset.NewMemory()
	f := &FixRunner{Fixed: fixed}
	rec := model.Record{ID: "r1", NodeID: "Node_4"}

	var streamed []string
	lines, err := f.ExecuteFix(context.Background(), rec, model.FixRestart, func(s string) {
		streamed = append(streamed, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Sequential restart: Node_4...",
		"Shutting down worker process...",
		"Starting worker process...",
		"Verifying workflow state...",
		"Done.",
	}, lines)
	assert.Equal(t, lines, streamed)
	assert.Equal(t, []string{"r1"}, fixedIDs(t, fixed))

	lines, err = f.ExecuteFix(context.Background(), model.Record{ID: "r2", NodeID: "Node_1"}, model.FixEscalate, nil)
	require.NoError(t, err)
	assert.Equal(t, "Escalating to TCC (BMCC - EDA Prod Batch)...", lines[0])
	assert.Equal(t, "Done.", lines[len(lines)-1])
}

func TestExecuteFixNoOpAndCancel(t *testing.T) {
	fixed := fixset.NewMemory()
	f := &FixRunner{Fixed: fixed, Interval: time.Hour}

	lines, err := f.ExecuteFix(context.Background(), model.Record{ID: "r1"}, "", nil)
	assert.NoError(t, err)
	assert.Nil(t, lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lines, err = f.ExecuteFix(ctx, model.Record{ID: "r1", NodeID: "Node_2"}, model.FixRestart, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, lines)
	assert.Empty(t, fixedIDs(t, fixed))
}

func TestExecuteFixRefusedCommit(t *testing.T) {
	fixed := fixset.NewMemory()
	calls := 0
	f := &FixRunner{Fixed: fixed, Commit: func() bool {
		calls++
		return false
	}}

	lines, err := f.ExecuteFix(context.Background(), model.Record{ID: "r1", NodeID: "Node_4"}, model.FixRestart, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, lines, 5, "narration completes before commit")
	assert.Equal(t, 1, calls)
	assert.Empty(t, fixedIDs(t, fixed))
}

type failSink struct{}

func (failSink) Record(audit.AuditEntry) error { return assert.AnError }

func TestSinksFanOutDespiteErrors(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	sinks := Sinks{a, failSink{}, nil, b}
	e := audit.Builder{}.Build("reason", "A", "run", 0, 1, model.OutcomeSuccess, "")

	err := sinks.Record(e)
	require.ErrorIs(t, err, assert.AnError)
	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}
