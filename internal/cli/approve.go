package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/approval"
)

var (
	approveDuration time.Duration
	approveBy       string
	approveDeny     bool
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 5m, 1h). Default: one-time use")
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Name of the second approver (required unless --deny)")
	approveCmd.Flags().BoolVar(&approveDeny, "deny", false, "Deny the request instead of approving it")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Grant four-eyes approval for a master node restart",
	Long: "Approves a pending request recorded when a restart of the critical unit was proposed.\n" +
		"Without --duration, approval is one-time (consumed when the fix executes).\n" +
		"With --duration, approval is valid for the specified period.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func openApprovals() (*approval.Store, error) {
	dir := approval.DefaultDir()
	if holder, err := loadHolder(); err == nil && holder.Load().Config.ApprovalDir != "" {
		dir = holder.Load().Config.ApprovalDir
	}
	store, err := approval.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return store, nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals()
	if err != nil {
		return err
	}

	if approveDeny {
		if err := store.Deny(key); err != nil {
			return err
		}
		fmt.Printf("Denied %q\n", key)
		return nil
	}

	if err := store.Approve(key, approveBy, approveDuration); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q by %s for %s\n", key, approveBy, approveDuration)
	} else {
		fmt.Printf("Approved %q by %s (one-time use)\n", key, approveBy)
	}
	return nil
}
