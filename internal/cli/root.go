package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/logging"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/reasoning"
	"github.com/ppiankov/autoheal/internal/redact"
)

var (
	configPath string
	verbose    bool
	logger     = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to guardrail config YAML (default ~/.autoheal/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "autoheal",
	Short: "Guarded bulk remediation for integration grid failures",
	Long: "Explains failed grid jobs, proposes a restart or escalation, and applies the fix\n" +
		"to every matching record one step at a time. The first failed step halts the run.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadHolder loads the guardrail config into a holder.
func loadHolder() (*policy.Holder, error) {
	cfg, hash, err := policy.LoadConfigWithHash(configPath)
	if err != nil {
		return nil, err
	}
	return policy.NewHolder(cfg, hash), nil
}

// newExplainer picks the language model explainer when AUTOHEAL_LLM_URL is
// set and the offline SOP explainer otherwise. AUTOHEAL_REDACT=always|never
// overrides redaction, which is on for non-loopback endpoints.
func newExplainer() reasoning.Explainer {
	url := os.Getenv("AUTOHEAL_LLM_URL")
	if url == "" {
		return reasoning.SOPExplainer{}
	}
	model := os.Getenv("AUTOHEAL_LLM_MODEL")
	if model == "" {
		model = reasoning.DefaultModel
	}
	ex := reasoning.NewChatExplainer(url, model, os.Getenv("AUTOHEAL_LLM_KEY"))
	ex.Redact = redact.ResolveMode(url, os.Getenv("AUTOHEAL_REDACT")) == redact.ModeCloud
	logger.Debug("using chat explainer",
		zap.String("url", url),
		zap.String("model", model),
		zap.Bool("redact", ex.Redact))
	return ex
}
