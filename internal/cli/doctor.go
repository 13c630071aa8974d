package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/approval"
	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/redact"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, audit log and state store",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := doctorChecks(cmd.Context())

	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func doctorChecks(ctx context.Context) []checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var checks []checkResult

	path := configPath
	if path == "" {
		path = policy.DefaultPath()
	}
	cfg, hash, err := policy.LoadConfigWithHash(path)
	switch {
	case err != nil:
		return append(checks, checkResult{label: "config", detail: err.Error(), fix: "autoheal init --force"})
	case fileExists(path):
		checks = append(checks, checkResult{label: "config", ok: true, detail: fmt.Sprintf("%s (%s)", path, hash[:19])})
	default:
		checks = append(checks, checkResult{label: "config", ok: true, detail: "defaults (no file)"})
	}

	checks = append(checks, checkResult{
		label:  "critical unit",
		ok:     true,
		detail: fmt.Sprintf("%s (fail_at_index %d)", cfg.CriticalUnit, cfg.FailAtIndex),
	})

	dir := cfg.ApprovalDir
	if dir == "" {
		dir = approval.DefaultDir()
	}
	if _, err := approval.NewStore(dir); err != nil {
		checks = append(checks, checkResult{label: "approvals", detail: err.Error(), fix: "autoheal init"})
	} else {
		checks = append(checks, checkResult{label: "approvals", ok: true, detail: dir})
	}

	if cfg.AuditLog != "" && fileExists(cfg.AuditLog) {
		v := audit.Verify(cfg.AuditLog)
		if v.Valid {
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("%d entries, chain intact", v.Lines)})
		} else {
			checks = append(checks, checkResult{
				label:  "audit log",
				detail: fmt.Sprintf("broken at line %d: %s", v.ErrorLine, v.Error),
				fix:    "autoheal audit verify " + cfg.AuditLog,
			})
		}
	}

	if cfg.StateDB != "" {
		db, err := fixset.OpenSQLite(ctx, cfg.StateDB)
		if err != nil {
			checks = append(checks, checkResult{label: "state db", detail: err.Error()})
		} else {
			ids, err := db.List(ctx)
			db.Close()
			if err != nil {
				checks = append(checks, checkResult{label: "state db", detail: err.Error()})
			} else {
				checks = append(checks, checkResult{label: "state db", ok: true, detail: fmt.Sprintf("%d fixed records", len(ids))})
			}
		}
	}

	reasoningDetail := "offline SOP knowledge base"
	if url := os.Getenv("AUTOHEAL_LLM_URL"); url != "" {
		reasoningDetail = fmt.Sprintf("%s (redaction %s)", url, redact.ResolveMode(url, os.Getenv("AUTOHEAL_REDACT")))
	}
	checks = append(checks, checkResult{label: "reasoning", ok: true, detail: reasoningDetail})

	budget := "unlimited"
	if cfg.RestartLimit.Enabled() {
		budget = fmt.Sprintf("%d per %s per node", cfg.RestartLimit.MaxRestarts, cfg.RestartLimit.Window)
	}
	checks = append(checks, checkResult{label: "restart budget", ok: true, detail: budget})

	for i, hook := range cfg.Alerts {
		if hook.URL == "" {
			checks = append(checks, checkResult{label: "alerts", detail: fmt.Sprintf("webhook %d has no url", i+1), fix: "edit " + path})
		}
	}
	if len(cfg.Alerts) > 0 {
		checks = append(checks, checkResult{label: "alerts", ok: true, detail: fmt.Sprintf("%d webhooks", len(cfg.Alerts))})
	}

	return checks
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
