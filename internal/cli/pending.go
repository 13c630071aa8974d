package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/approval"
)

var pendingAll bool

func init() {
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include resolved requests")
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List four-eyes requests waiting for a second approver",
	Long:  "Lists critical unit restarts waiting for a second approver. Approve one with\n`autoheal approve <key> --by <name>`.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openApprovals()
	if err != nil {
		return err
	}
	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	var shown []approval.Approval
	for _, a := range list {
		if pendingAll || a.Status == approval.StatusPending {
			shown = append(shown, a)
		}
	}
	if len(shown) == 0 {
		fmt.Println("No restarts waiting for a second approver.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tRECORD\tSTATUS\tAPPROVER\tREQUESTED\tREASON")
	for _, a := range shown {
		approver := a.Approver
		if approver == "" {
			approver = "-"
		}
		if a.ExpiresAt != nil {
			approver += " until " + a.ExpiresAt.Local().Format(time.Kitchen)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Key, a.RecordID, a.Status, approver, a.CreatedAt.Local().Format("15:04:05"), a.Reason)
	}
	return w.Flush()
}
