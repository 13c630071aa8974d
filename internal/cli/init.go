package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/policy"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.autoheal)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap autoheal configuration",
	Long:  "Creates the config directory, a default config.yaml and the approvals directory.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		dir = policy.DefaultDir()
	}

	var created []string

	approvalsDir := filepath.Join(dir, "approvals")
	if err := os.MkdirAll(approvalsDir, 0o700); err != nil {
		return fmt.Errorf("create approvals directory: %w", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	if wrote, err := writeIfMissing(cfgPath, policy.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfgPath)
	}

	fmt.Println("autoheal init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
	}
	fmt.Println()
	fmt.Println("Verify:")
	fmt.Println("  autoheal doctor")
	fmt.Println()
	fmt.Println("Try a bulk run:")
	fmt.Println("  autoheal demo bulk")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
