package scenario

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/remediate"
)

const (
	defaultMasterReason = "scenario run"
	caseTimeout         = 10 * time.Second
)

// abortingExecutor aborts the run while the step numbered after is in
// flight, then lets that step finish.
type abortingExecutor struct {
	inner remediate.StepExecutor
	after int32
	calls atomic.Int32
	abort func() bool
}

func (a *abortingExecutor) ExecuteStep(ctx context.Context, req remediate.StepRequest) (remediate.StepResult, error) {
	if a.calls.Add(1) == a.after {
		a.abort()
	}
	return a.inner.ExecuteStep(ctx, req)
}

// Run executes every case against a fresh orchestrator with zero latency.
// Cases are independent.
func Run(ctx context.Context, s *Scenario, cfg *policy.Config) *RunResult {
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := runCase(ctx, c, cfg)
		cr.Index = i + 1
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func runCase(ctx context.Context, c Case, cfg *policy.Config) CaseResult {
	pol := cfg.Policy()
	if c.FailAt != nil {
		if *c.FailAt < 0 {
			pol = policy.Never{}
		} else {
			pol = policy.FailAt(*c.FailAt)
		}
	}

	fixed := fixset.NewMemory()
	var exec remediate.StepExecutor = &remediate.Executor{Policy: pol}
	var aborter *abortingExecutor
	if c.AbortAfter > 0 {
		aborter = &abortingExecutor{inner: exec, after: int32(c.AbortAfter)}
		exec = aborter
	}
	orch := remediate.New(remediate.Options{Executor: exec, Fixed: fixed})
	if aborter != nil {
		aborter.abort = orch.Abort
	}

	reason := c.MasterReason
	if reason == "" {
		reason = defaultMasterReason
	}

	cr := CaseResult{
		Targets:  len(c.Targets),
		Expected: strings.ToLower(c.Expect.Status),
	}

	ctx, cancel := context.WithTimeout(ctx, caseTimeout)
	defer cancel()

	if _, ok := orch.Start(ctx, c.Targets, reason); !ok {
		cr.Actual = "not_started"
	} else if err := orch.Wait(ctx); err != nil {
		cr.Actual = "timeout"
	} else {
		cr.Actual = string(orch.Snapshot().Status)
	}

	for _, e := range orch.Entries() {
		cr.Entries = append(cr.Entries, string(e.Outcome))
	}
	cr.Fixed, _ = fixed.List(ctx)

	var problems []string
	if cr.Actual != cr.Expected {
		problems = append(problems, fmt.Sprintf("status %s, want %s", cr.Actual, cr.Expected))
	}
	if c.Expect.Entries != nil && !slices.Equal(cr.Entries, c.Expect.Entries) {
		problems = append(problems, fmt.Sprintf("entries %v, want %v", cr.Entries, c.Expect.Entries))
	}
	if c.Expect.Fixed != nil && !slices.Equal(cr.Fixed, c.Expect.Fixed) {
		problems = append(problems, fmt.Sprintf("fixed %v, want %v", cr.Fixed, c.Expect.Fixed))
	}
	cr.Passed = len(problems) == 0
	cr.Reason = strings.Join(problems, "; ")
	return cr
}

// Load parses a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the guardrail config, then runs.
func LoadAndRun(ctx context.Context, path, configPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	cfg, err := policy.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	result := Run(ctx, s, cfg)
	result.File = path

	return result, nil
}
