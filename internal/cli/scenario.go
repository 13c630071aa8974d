package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/autoheal/internal/scenario"
)

var scenarioFormat string

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.AddCommand(scenarioRunCmd)
	scenarioRunCmd.Flags().StringVarP(&scenarioFormat, "format", "f", "text", "Output format (text|json)")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Bulk run scenario assertions",
}

var scenarioRunCmd = &cobra.Command{
	Use:   "run <file|glob>...",
	Short: "Run bulk run assertions from scenario files",
	Long: "Loads scenario YAML files, runs every case against a fresh orchestrator\n" +
		"with zero step latency, and compares status, entries and fixed records.\n" +
		"Exits non-zero if any case fails.",
	Args: cobra.MinimumNArgs(1),
	RunE: runScenarios,
}

func runScenarios(cmd *cobra.Command, args []string) error {
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no scenario files match: %v", args)
	}

	var results []*scenario.RunResult
	for _, path := range files {
		r, err := scenario.LoadAndRun(cmd.Context(), path, configPath)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	if scenarioFormat == "json" {
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	} else {
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}
	return nil
}
