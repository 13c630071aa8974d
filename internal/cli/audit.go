package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/audit"
)

var (
	tailLines int
	tailRun   string
	tailJSON  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().StringVar(&tailRun, "run", "", "Only show entries of this run")
	auditTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print raw JSON entries")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the bulk run audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Check the hash chain and step order of an audit log",
	Long: "Checks that every entry chains to the one before it and that each run's\n" +
		"steps are numbered without gaps, share one master reason and stop at the\n" +
		"first failure. Defaults to audit_log from the config.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show the most recent audit entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

// auditLogPath returns the path argument or the configured audit log.
func auditLogPath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	holder, err := loadHolder()
	if err != nil {
		return "", err
	}
	if path := holder.Load().Config.AuditLog; path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no audit log: pass a path or set audit_log in the config")
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditLogPath(args)
	if err != nil {
		return err
	}
	v := audit.Verify(path)
	if !v.Valid {
		fmt.Fprintf(os.Stderr, "%s: broken at line %d: %s\n", path, v.ErrorLine, v.Error)
		os.Exit(1)
	}
	fmt.Printf("%s: %d entries, %d runs (%d halted), chain intact\n", path, v.Lines, v.Runs, v.Halted)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditLogPath(args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	type row struct {
		raw   string
		entry audit.AuditEntry
	}
	var rows []row
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var e audit.AuditEntry
		if line == "" || json.Unmarshal([]byte(line), &e) != nil {
			continue
		}
		if tailRun != "" && e.RunID != tailRun {
			continue
		}
		rows = append(rows, row{raw: line, entry: e})
	}

	lastRun := ""
	for _, r := range rows[max(len(rows)-tailLines, 0):] {
		if tailJSON {
			fmt.Println(r.raw)
			continue
		}
		if r.entry.RunID != lastRun {
			fmt.Printf("run %s: %s\n", r.entry.RunID, r.entry.MasterReason)
			lastRun = r.entry.RunID
		}
		fmt.Printf("  %s  %s", r.entry.Line(), r.entry.RecordID)
		if r.entry.Note != "" {
			fmt.Printf("  (%s)", r.entry.Note)
		}
		fmt.Println()
	}
	return nil
}
