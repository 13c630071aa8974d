package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

var generated = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleLines() []string {
	return []string{
		"2026-03-14T09:29:01.000Z Ticket 1/5 success",
		"2026-03-14T09:29:02.000Z Ticket 2/5 success",
		"2026-03-14T09:29:03.000Z Ticket 3/5 failed",
	}
}

func TestBuildGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	g.Assert(t, "bulk_halted", []byte(Build(Report{
		Generated:     generated,
		ResolvedCount: 2,
		SLAMitigated:  true,
		AuditLines:    sampleLines(),
	})))
	g.Assert(t, "single_fix", []byte(Build(Report{
		Generated:     generated,
		ResolvedCount: 1,
	})))
}

func TestBuildDeterministicExceptTimestamp(t *testing.T) {
	a := Build(Report{Generated: generated, ResolvedCount: 3, AuditLines: sampleLines()})
	b := Build(Report{Generated: generated.Add(time.Hour), ResolvedCount: 3, AuditLines: sampleLines()})

	al := strings.Split(a, "\r\n")
	bl := strings.Split(b, "\r\n")
	if len(al) != len(bl) {
		t.Fatalf("line count differs: %d vs %d", len(al), len(bl))
	}
	for i := range al {
		if i == 1 {
			if al[i] == bl[i] {
				t.Error("expected generation line to differ")
			}
			continue
		}
		if al[i] != bl[i] {
			t.Errorf("line %d differs: %q vs %q", i, al[i], bl[i])
		}
	}

	if Build(Report{Generated: generated, ResolvedCount: 3, AuditLines: sampleLines()}) != a {
		t.Error("expected identical output for identical input")
	}
}

func TestBuildOrdering(t *testing.T) {
	text := Build(Report{Generated: generated, ResolvedCount: 2, AuditLines: sampleLines()})
	lines := strings.Split(text, "\r\n")

	if lines[1] != "Generated: 2026-03-14T09:30:00Z" {
		t.Errorf("unexpected generated line %q", lines[1])
	}
	if lines[4] != "Resolved count: 2" || lines[5] != "SLA impact mitigated: N/A" {
		t.Errorf("unexpected summary lines %q %q", lines[4], lines[5])
	}
	tail := lines[len(lines)-3:]
	for i, want := range sampleLines() {
		if tail[i] != want {
			t.Errorf("audit line %d = %q, want %q", i, tail[i], want)
		}
	}
	if strings.Contains(strings.ReplaceAll(text, "\r\n", ""), "\n") {
		t.Error("expected CRLF separators only")
	}
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := Write(dir, Report{Generated: generated, ResolvedCount: 1})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != "incident-audit-2026-03-14.txt" {
		t.Errorf("unexpected file name %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "AutoHeal Incident Audit Report\r\n") {
		t.Errorf("unexpected content %q", data[:40])
	}
}

func TestTimeSaved(t *testing.T) {
	if got := TimeSaved(3); got != 1.5 {
		t.Errorf("TimeSaved(3) = %v, want 1.5", got)
	}
	if got := TimeSaved(0); got != 0 {
		t.Errorf("TimeSaved(0) = %v, want 0", got)
	}
}
