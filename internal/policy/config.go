package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/autoheal/internal/alert"
	"github.com/ppiankov/autoheal/internal/ratelimit"
)

// Config holds the guardrail parameters for remediation runs.
type Config struct {
	// CriticalUnit is the node whose restart needs a second approver.
	CriticalUnit    string   `yaml:"critical_unit"`
	EscalationCodes []string `yaml:"escalation_codes"`
	EscalationTerms []string `yaml:"escalation_terms"`
	// FailAtIndex is the 0-based bulk step that fails. Negative disables.
	FailAtIndex     int           `yaml:"fail_at_index"`
	StepLatency     time.Duration `yaml:"step_latency"`
	FixStepInterval time.Duration `yaml:"fix_step_interval"`
	AuditLog        string        `yaml:"audit_log"`
	StateDB         string        `yaml:"state_db"`
	ApprovalDir     string        `yaml:"approval_dir"`
	// RestartLimit caps restarts per node. Zero disables.
	RestartLimit ratelimit.Limit `yaml:"restart_limit"`
	// Alerts receive halted, approval_required and escalated events.
	Alerts []alert.Webhook `yaml:"alerts"`
}

// DefaultConfig returns the built-in guardrail config.
func DefaultConfig() *Config {
	return &Config{
		CriticalUnit:    "Node_1",
		EscalationCodes: []string{"0xC0042003"},
		EscalationTerms: []string{"tcc", "escalat"},
		FailAtIndex:     DefaultFailIndex,
		StepLatency:     400 * time.Millisecond,
		FixStepInterval: 800 * time.Millisecond,
	}
}

// Policy returns the step failure policy described by the config.
func (c *Config) Policy() FailurePolicy {
	if c.FailAtIndex < 0 {
		return Never{}
	}
	return FailAt(c.FailAtIndex)
}

// DefaultDir returns the autoheal state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "autoheal")
	}
	return filepath.Join(home, ".autoheal")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// LoadConfig loads guardrail configuration from a YAML file.
// Empty path falls back to ~/.autoheal/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads the config and returns the SHA-256 of its raw
// bytes. When no file exists the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read guardrail config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse guardrail config: %w", err)
	}
	if cfg.CriticalUnit == "" {
		return nil, "", fmt.Errorf("guardrail config: critical_unit must not be empty")
	}

	return cfg, hashBytes(data), nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented config file carrying the defaults.
func DefaultConfigYAML() string {
	return `# autoheal guardrail configuration
# Generated by: autoheal init
#
# Missing fields fall back to the built-in defaults.

# Restarting this node requires a named second approver.
critical_unit: Node_1

# Error codes that are handed to the batch team instead of restarted.
escalation_codes:
  - "0xC0042003"

# Case-insensitive terms in a fix justification that force escalation.
escalation_terms:
  - tcc
  - escalat

# 0-based bulk step that fails and halts the run. -1 never fails.
fail_at_index: 2

# Simulated duration of one bulk step and of one single-fix progress step.
step_latency: 400ms
fix_step_interval: 800ms

# Optional hash-chained JSONL audit log for bulk runs.
audit_log: ""

# Optional SQLite database persisting the fixed-record set.
state_db: ""

# Directory holding four-eyes approvals. Empty uses ~/.autoheal/approvals.
approval_dir: ""

# Restart budget per grid node. Bulk runs count one restart per target.
# Zero disables the limit.
restart_limit:
  max_restarts: 0
  window: 0s

# Webhooks notified when a run halts, a second approval is needed or an
# escalation is executed. Formats: generic, slack, pagerduty.
alerts: []
#  - url: https://hooks.slack.com/services/T000/B000/XXXX
#    format: slack
#    events: [halted, approval_required, escalated]
`
}
