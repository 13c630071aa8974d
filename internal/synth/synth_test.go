package synth

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestRecordShape(t *testing.T) {
	g := New(1, fixedClock())
	for range 50 {
		r := g.Record()
		if _, err := uuid.Parse(r.ID); err != nil {
			t.Fatalf("invalid id %q: %v", r.ID, err)
		}
		if !slices.Contains(ErrorCodes, r.ErrorCode) {
			t.Fatalf("unexpected code %q", r.ErrorCode)
		}
		if !strings.HasPrefix(r.NodeID, "Node_") || len(r.NodeID) != 6 || r.NodeID == "Node_0" {
			t.Fatalf("unexpected node %q", r.NodeID)
		}
		if !strings.Contains(r.RawLog, "(Error Code: "+r.ErrorCode+")") {
			t.Fatalf("raw log missing error code: %s", r.RawLog)
		}
		if got := strings.Count(r.RawLog, "\n"); got != 3 {
			t.Fatalf("expected 4 raw log lines, got %d", got+1)
		}
		if len(r.SessionID) != len("SESS_")+6 {
			t.Fatalf("unexpected session %q", r.SessionID)
		}
		wantSev := "FATAL"
		if r.ErrorCode == "0xC0042003" {
			wantSev = "ERROR"
		}
		if string(r.Severity) != wantSev {
			t.Fatalf("code %s severity %s, want %s", r.ErrorCode, r.Severity, wantSev)
		}
		if r.Metadata.IntegrationService != integrationService {
			t.Fatalf("unexpected integration service %q", r.Metadata.IntegrationService)
		}
	}
}

func TestSeedReproducible(t *testing.T) {
	a := New(42, fixedClock()).Records(10)
	b := New(42, fixedClock()).Records(10)
	for i := range a {
		if a[i].ID != b[i].ID || a[i].RawLog != b[i].RawLog {
			t.Fatalf("record %d differs between equal seeds", i)
		}
	}

	c := New(43, fixedClock()).Records(10)
	if a[0].ID == c[0].ID {
		t.Fatal("expected different seeds to give different ids")
	}
}

func TestRecordsSorted(t *testing.T) {
	recs := New(7, nil).Records(20)
	if len(recs) != 20 {
		t.Fatalf("expected 20 records, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Timestamp.Before(recs[i-1].Timestamp) {
			t.Fatalf("records not sorted at %d", i)
		}
	}
	if len(New(7, nil).Records(0)) != 0 {
		t.Fatal("expected empty slice")
	}
}

func TestCluster(t *testing.T) {
	g := New(3, fixedClock())
	recs := g.Cluster(4, "0x80070003", "Node_6")
	if len(recs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(recs))
	}
	seen := map[string]bool{}
	for _, r := range recs {
		if r.ErrorCode != "0x80070003" || r.NodeID != "Node_6" {
			t.Fatalf("unexpected record %s/%s", r.ErrorCode, r.NodeID)
		}
		if !strings.Contains(r.Message, "cannot find the path") {
			t.Errorf("unexpected message %q", r.Message)
		}
		seen[r.ID] = true
	}
	if len(seen) != 4 {
		t.Error("expected distinct ids")
	}

	other := g.Cluster(1, "0xDEADBEEF", "Node_2")[0]
	if other.Message == "" || !strings.Contains(other.RawLog, "0xDEADBEEF") {
		t.Errorf("unknown code record malformed: %+v", other)
	}
}
