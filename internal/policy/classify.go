package policy

import (
	"slices"
	"strings"

	"github.com/ppiankov/autoheal/internal/model"
)

// ClassifyFix decides the remediation kind for a record given the
// justification produced by the reasoning step. A record escalates when its
// error code is a designated escalation code or the justification mentions
// an escalation term; every other record gets an immediate restart.
func ClassifyFix(rec model.Record, justification string, cfg *Config) model.FixKind {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if slices.Contains(cfg.EscalationCodes, rec.ErrorCode) {
		return model.FixEscalate
	}
	lower := strings.ToLower(justification)
	for _, term := range cfg.EscalationTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return model.FixEscalate
		}
	}
	return model.FixRestart
}
