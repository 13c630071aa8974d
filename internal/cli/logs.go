package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/synth"
)

var (
	logsCount int
	logsSeed  uint64
	logsJSON  bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsGenerateCmd)
	logsGenerateCmd.Flags().IntVarP(&logsCount, "count", "n", 25, "Number of records to generate")
	logsGenerateCmd.Flags().Uint64Var(&logsSeed, "seed", 0, "Seed for reproducible output (0 picks one from the clock)")
	logsGenerateCmd.Flags().BoolVar(&logsJSON, "json", false, "Print records as JSON")
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Grid error record operations",
}

var logsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic grid error records",
	RunE:  runLogsGenerate,
}

func runLogsGenerate(cmd *cobra.Command, args []string) error {
	seed := logsSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	recs := synth.New(seed, nil).Records(logsCount)

	if logsJSON {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%-36s %-8s %-7s %-20s %-11s %s\n", "ID", "SEVERITY", "NODE", "WORKFLOW", "CODE", "MESSAGE")
	for _, r := range recs {
		fmt.Printf("%-36s %-8s %-7s %-20s %-11s %s\n",
			r.ID, r.Severity, r.NodeID, r.WorkflowName, r.ErrorCode, truncate(r.Message, 60))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
