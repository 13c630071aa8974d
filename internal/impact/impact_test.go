package impact

import (
	"strings"
	"testing"

	"github.com/ppiankov/autoheal/internal/model"
)

func TestAnalyzeKnownWorkflows(t *testing.T) {
	tests := []struct {
		workflow string
		minutes  int
		risk     Risk
		sla      bool
	}{
		{"wf_Retail_Daily", 12, RiskMedium, false},
		{"wf_General_Ledger", 45, RiskHigh, true},
		{"wf_Compliance_Audit", 20, RiskMedium, true},
		{"wf_Unknown", 5, RiskLow, false},
		{"", 5, RiskLow, false},
	}

	for _, tt := range tests {
		t.Run(tt.workflow, func(t *testing.T) {
			a := Analyze(tt.workflow)
			if a.DowntimeMinutes != tt.minutes {
				t.Errorf("minutes = %d, want %d", a.DowntimeMinutes, tt.minutes)
			}
			if a.RiskLevel != tt.risk {
				t.Errorf("risk = %s, want %s", a.RiskLevel, tt.risk)
			}
			if a.AffectedSLA != tt.sla {
				t.Errorf("sla = %v, want %v", a.AffectedSLA, tt.sla)
			}
			if len(a.DownstreamSystems) == 0 {
				t.Error("expected downstream systems")
			}
		})
	}
}

func TestAnalyzeReturnsCopy(t *testing.T) {
	a := Analyze("wf_Retail_Daily")
	a.DownstreamSystems[0] = "mutated"

	b := Analyze("wf_Retail_Daily")
	if b.DownstreamSystems[0] != "Mobile Banking App" {
		t.Fatalf("lookup table was mutated: %v", b.DownstreamSystems)
	}
}

func TestProjectSingleRestart(t *testing.T) {
	p, ok := Project(model.FixRestart, "Node_1", "Node_1", 1)
	if !ok {
		t.Fatal("expected projection")
	}
	if p.DownstreamJobs != 8 || p.EstimatedMinutes != 15 {
		t.Errorf("got %d jobs / %d min, want 8 / 15", p.DownstreamJobs, p.EstimatedMinutes)
	}
	if !p.Critical {
		t.Error("expected critical unit restart to be flagged")
	}
	if !strings.Contains(p.Summary, "8 downstream compliance jobs") {
		t.Errorf("unexpected summary %q", p.Summary)
	}
}

func TestProjectBulkRestart(t *testing.T) {
	p, ok := Project(model.FixRestart, "Node_4", "Node_1", 3)
	if !ok {
		t.Fatal("expected projection")
	}
	// ceil(6 * 1.2 * 3) = ceil(21.6) = 22
	if p.DownstreamJobs != 6 || p.EstimatedMinutes != 22 {
		t.Errorf("got %d jobs / %d min, want 6 / 22", p.DownstreamJobs, p.EstimatedMinutes)
	}
	if p.Critical {
		t.Error("worker node should not be critical")
	}
	if !strings.Contains(p.Summary, "across 3 nodes") {
		t.Errorf("unexpected summary %q", p.Summary)
	}
}

func TestProjectEscalationIsFixed(t *testing.T) {
	p, ok := Project(model.FixEscalate, "Node_1", "Node_1", 10)
	if !ok {
		t.Fatal("expected projection")
	}
	if p.DownstreamJobs != 2 || p.EstimatedMinutes != 5 || p.Critical {
		t.Errorf("unexpected escalation projection %+v", p)
	}
}

func TestProjectMissingInput(t *testing.T) {
	if _, ok := Project("", "Node_1", "Node_1", 1); ok {
		t.Error("expected no projection without fix kind")
	}
	if _, ok := Project(model.FixRestart, "", "Node_1", 1); ok {
		t.Error("expected no projection without node")
	}
}
