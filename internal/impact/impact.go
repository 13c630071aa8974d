// Package impact answers the display-only question "what does this fix
// disturb": workflow-level downstream systems and node-level job pauses.
// Nothing here influences run control flow.
package impact

import (
	"fmt"
	"math"

	"github.com/ppiankov/autoheal/internal/model"
)

// Risk is a coarse risk level.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// Assessment is the workflow-level impact of touching a workflow.
type Assessment struct {
	DownstreamSystems []string `json:"downstream_systems"`
	DowntimeMinutes   int      `json:"downtime_minutes"`
	RiskLevel         Risk     `json:"risk_level"`
	AffectedSLA       bool     `json:"affected_sla"`
}

var workflows = map[string]Assessment{
	"wf_Retail_Daily": {
		DownstreamSystems: []string{"Mobile Banking App", "ATM Ledger Sync"},
		DowntimeMinutes:   12,
		RiskLevel:         RiskMedium,
	},
	"wf_General_Ledger": {
		DownstreamSystems: []string{"Federal Reserve Reporting", "Quarterly Audit Tool"},
		DowntimeMinutes:   45,
		RiskLevel:         RiskHigh,
		AffectedSLA:       true,
	},
	"wf_Compliance_Audit": {
		DownstreamSystems: []string{"Regulatory Filing Pipeline", "Internal Compliance Dashboard"},
		DowntimeMinutes:   20,
		RiskLevel:         RiskMedium,
		AffectedSLA:       true,
	},
}

var fallback = Assessment{
	DownstreamSystems: []string{"Internal BI Dashboard"},
	DowntimeMinutes:   5,
	RiskLevel:         RiskLow,
}

// Analyze returns the impact assessment for a workflow. Unknown workflows
// get a generic low-risk assessment.
func Analyze(workflow string) Assessment {
	a, ok := workflows[workflow]
	if !ok {
		a = fallback
	}
	a.DownstreamSystems = append([]string(nil), a.DownstreamSystems...)
	return a
}

// Projection is the node-level impact of applying a fix count times.
type Projection struct {
	Summary         string `json:"summary"`
	DownstreamJobs  int    `json:"downstream_jobs"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Critical        bool   `json:"critical"`
}

type nodeLoad struct {
	jobs    int
	minutes int
}

var nodes = map[string]nodeLoad{
	"Node_1": {8, 15},
	"Node_2": {3, 8},
	"Node_3": {3, 8},
}

var defaultLoad = nodeLoad{2, 6}

// bulkFactor inflates per-node minutes for sequential bulk runs.
const bulkFactor = 1.2

// Project estimates the pause caused by applying kind on node across count
// records. criticalUnit marks the node whose restart is flagged critical.
// It returns false when kind or node is empty.
func Project(kind model.FixKind, node, criticalUnit string, count int) (Projection, bool) {
	if !kind.Valid() || node == "" {
		return Projection{}, false
	}

	if kind == model.FixEscalate {
		return Projection{
			Summary:         "TCC will coordinate job restart; 1-2 downstream file-writer jobs may be briefly paused.",
			DownstreamJobs:  2,
			EstimatedMinutes: 5,
		}, true
	}

	load, ok := nodes[node]
	if !ok {
		load = defaultLoad
	}

	p := Projection{
		DownstreamJobs:  load.jobs,
		EstimatedMinutes: load.minutes,
		Critical:        node == criticalUnit,
	}
	if count > 1 {
		p.DownstreamJobs = load.jobs * count
		p.EstimatedMinutes = int(math.Ceil(float64(load.minutes) * bulkFactor * float64(count)))
		p.Summary = fmt.Sprintf("This fix will pause %d downstream compliance/data jobs across %d nodes for approximately %d minutes.",
			p.DownstreamJobs, count, p.EstimatedMinutes)
	} else {
		p.Summary = fmt.Sprintf("This fix will pause %d downstream compliance jobs for approximately %d minutes.",
			p.DownstreamJobs, p.EstimatedMinutes)
	}
	return p, true
}
