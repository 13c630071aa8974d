package approval

import (
	"errors"
	"strings"

	"github.com/ppiankov/autoheal/internal/model"
)

var (
	// ErrApproverRequired is returned when a confirmation names no approver.
	ErrApproverRequired = errors.New("approval: second approver name is required")
	// ErrNotRequired is returned when confirming a fix that needs no second approver.
	ErrNotRequired = errors.New("approval: no second approval required for this fix")
)

// RequiresSecondApproval reports whether a fix needs four-eyes confirmation:
// only an immediate restart of the critical unit does.
func RequiresSecondApproval(locationKey string, kind model.FixKind, criticalUnit string) bool {
	return kind == model.FixRestart && locationKey == criticalUnit
}

// Gate is the second-approver state for one selected record. A gate is
// never carried over to another record; selecting a new target builds a
// fresh gate.
type Gate struct {
	RecordID  string `json:"record_id"`
	Required  bool   `json:"required"`
	Approver  string `json:"approver,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// NewGate evaluates the gate for rec remediated with kind.
func NewGate(rec model.Record, kind model.FixKind, criticalUnit string) Gate {
	return Gate{
		RecordID: rec.ID,
		Required: RequiresSecondApproval(rec.NodeID, kind, criticalUnit),
	}
}

// Confirm records approver as the second approver.
func (g *Gate) Confirm(approver string) error {
	if !g.Required {
		return ErrNotRequired
	}
	name := strings.TrimSpace(approver)
	if name == "" {
		return ErrApproverRequired
	}
	g.Approver = name
	g.Confirmed = true
	return nil
}

// Blocks reports whether execution must wait for confirmation.
func (g Gate) Blocks() bool {
	return g.Required && !g.Confirmed
}

// KeyFor returns the ledger key used for a record's four-eyes request.
func KeyFor(recordID string) string {
	return "four-eyes-" + recordID
}
