package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/report"
	"github.com/ppiankov/autoheal/internal/session"
	"github.com/ppiankov/autoheal/internal/synth"
)

var (
	demoCount     int
	demoSeed      uint64
	demoApprover  string
	demoFast      bool
	demoReportDir string
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.AddCommand(demoBulkCmd, demoSingleCmd, demoMasterCmd)
	demoCmd.PersistentFlags().Uint64Var(&demoSeed, "seed", 0, "Seed for synthetic records (0 picks one from the clock)")
	demoCmd.PersistentFlags().BoolVar(&demoFast, "fast", false, "Skip simulated step latency")
	demoCmd.PersistentFlags().StringVar(&demoReportDir, "report-dir", "", "Save the incident report into this directory")
	demoBulkCmd.Flags().IntVar(&demoCount, "count", 5, "Number of matching records in the bulk run")
	demoMasterCmd.Flags().StringVar(&demoApprover, "approver", "ops-lead", "Second approver for the master node restart")
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run demonstration scenarios",
}

var demoBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Apply one fix to a cluster of matching records (halts on the third step by default)",
	RunE:  runDemoBulk,
}

var demoSingleCmd = &cobra.Command{
	Use:   "single",
	Short: "Fix a single record",
	RunE:  runDemoSingle,
}

var demoMasterCmd = &cobra.Command{
	Use:   "master",
	Short: "Restart the critical unit behind a four-eyes approval",
	RunE:  runDemoMaster,
}

func demoGenerator() *synth.Generator {
	seed := demoSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return synth.New(seed, nil)
}

func demoHolder() (*policy.Holder, error) {
	holder, err := loadHolder()
	if err != nil {
		return nil, err
	}
	if demoFast {
		snap := holder.Load()
		cfg := *snap.Config
		cfg.StepLatency = 0
		cfg.FixStepInterval = 0
		holder.Store(&cfg, snap.Hash)
	}
	return holder, nil
}

func runDemoBulk(cmd *cobra.Command, args []string) error {
	if demoCount < 2 {
		return fmt.Errorf("--count must be at least 2")
	}
	fmt.Println("=== autoheal bulk remediation demo ===")
	fmt.Println("One restart proposal applied to every matching record, one step at a time.")
	fmt.Println()

	gen := demoGenerator()
	cluster := gen.Cluster(demoCount, "0x80040115", "Node_7")
	return runDemo(cmd.Context(), append(cluster, gen.Records(10)...), cluster[0].ID, true)
}

func runDemoSingle(cmd *cobra.Command, args []string) error {
	fmt.Println("=== autoheal single fix demo ===")
	fmt.Println()

	gen := demoGenerator()
	target := gen.Cluster(1, "0x80070003", "Node_4")[0]
	return runDemo(cmd.Context(), append([]model.Record{target}, gen.Records(5)...), target.ID, false)
}

func runDemoMaster(cmd *cobra.Command, args []string) error {
	holder, err := demoHolder()
	if err != nil {
		return err
	}
	critical := holder.Load().Config.CriticalUnit

	fmt.Println("=== autoheal four-eyes demo ===")
	fmt.Printf("Restarting %s requires a named second approver.\n", critical)
	fmt.Println()

	gen := demoGenerator()
	target := gen.Cluster(1, "0x80070005", critical)[0]
	return runDemoWith(cmd.Context(), holder, []model.Record{target}, target.ID, false)
}

func runDemo(ctx context.Context, records []model.Record, id string, bulk bool) error {
	holder, err := demoHolder()
	if err != nil {
		return err
	}
	return runDemoWith(ctx, holder, records, id, bulk)
}

func runDemoWith(ctx context.Context, holder *policy.Holder, records []model.Record, id string, bulk bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, holder, records)
	if err != nil {
		return err
	}
	defer rt.Close()
	s := rt.session

	rec, err := s.Select(id)
	if err != nil {
		return err
	}
	fmt.Printf("Selected  %s  %s  %s  %s\n", rec.ID, rec.NodeID, rec.WorkflowName, rec.ErrorCode)
	fmt.Printf("          %s\n", rec.Message)
	fmt.Println()

	res, err := s.Troubleshoot(ctx)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("troubleshoot: %w", res.Failure)
	}
	p := res.Proposal
	fmt.Printf("Proposal  %s (confidence %d%%)\n", p.Kind, p.Confidence)
	fmt.Printf("          %s\n", p.Justification)
	for _, line := range p.ToolTrace {
		fmt.Printf("  tool    %s\n", line)
	}
	fmt.Printf("Impact    risk %s, %d min downtime, SLA affected: %t\n",
		res.Impact.RiskLevel, res.Impact.DowntimeMinutes, res.Impact.AffectedSLA)
	if bulk {
		fmt.Printf("Similar   %d matching records\n", len(res.Similar))
	}
	fmt.Println()

	if errors.Is(s.CheckExecute(), session.ErrApprovalPending) {
		fmt.Println("Execute refused: second approval required.")
		s.SetApprover(demoApprover)
		if err := s.ConfirmApproval(); err != nil {
			return err
		}
		fmt.Printf("Approved by %s.\n", demoApprover)
		fmt.Println()
	}

	var started bool
	if bulk {
		started = s.ApplyToAll(ctx)
	} else {
		started = s.ExecuteFix(ctx)
	}
	if !started {
		reason := s.CheckExecute()
		if bulk {
			reason = s.CheckApplyAll()
		}
		return fmt.Errorf("fix not started: %v", reason)
	}

	v, err := follow(ctx, s)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("State     %s\n", v.State)
	fmt.Printf("Fixed     %s\n", strings.Join(v.Fixed, ", "))
	if v.Progress.RunID != "" {
		fmt.Printf("Run       %s\n", v.Progress.RunID)
	}

	r, ok := s.Report(time.Now())
	if !ok {
		fmt.Println("No report: the run did not complete.")
		return nil
	}
	fmt.Printf("Saved     %.1f engineer hours\n", report.TimeSaved(r.ResolvedCount))
	if demoReportDir != "" {
		path, err := report.Write(demoReportDir, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	}
	return nil
}

// follow prints narration lines as they appear until execution stops.
func follow(ctx context.Context, s *session.Session) (session.View, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	for {
		v, err := s.View(ctx)
		if err != nil {
			return v, err
		}
		for _, line := range v.Lines[min(printed, len(v.Lines)):] {
			fmt.Printf("  > %s\n", line)
		}
		printed = max(printed, len(v.Lines))
		if v.State != session.StateRunning {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}
