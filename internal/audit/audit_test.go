package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/autoheal/internal/model"
)

// newEntry builds an entry with the wall clock and no config hash.
func newEntry(masterReason, recordID, runID string, index, total int, outcome model.Outcome, note string) AuditEntry {
	return Builder{}.Build(masterReason, recordID, runID, index, total, outcome, note)
}

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulk-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l, path
}

// recordRun appends a run over targets that halts at failAt (-1 never).
func recordRun(t *testing.T, l *Log, runID string, targets []string, failAt int) {
	t.Helper()
	for i, id := range targets {
		outcome, note := model.OutcomeSuccess, ""
		if i == failAt {
			outcome, note = model.OutcomeFailed, HaltNote
		}
		if err := l.Record(newEntry("restart per SOP X", id, runID, i, len(targets), outcome, note)); err != nil {
			t.Fatalf("record %s step %d: %v", runID, i+1, err)
		}
		if i == failAt {
			return
		}
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildStoresOneBasedIndex(t *testing.T) {
	e := newEntry("reason", "rec-9", "run-1", 2, 5, model.OutcomeFailed, HaltNote)

	if e.Index != 3 {
		t.Errorf("expected index=3, got %d", e.Index)
	}
	if e.Total != 5 {
		t.Errorf("expected total=5, got %d", e.Total)
	}
	if e.RunID != "run-1" || e.RecordID != "rec-9" {
		t.Errorf("unexpected linkage: run=%s record=%s", e.RunID, e.RecordID)
	}
	if e.MasterReason != "reason" {
		t.Errorf("expected master reason to be carried, got %q", e.MasterReason)
	}
	if e.Note != HaltNote {
		t.Errorf("expected halt note, got %q", e.Note)
	}
	if !strings.HasPrefix(e.ID, "bulk-audit-run-1-2-") {
		t.Errorf("expected id to embed run and index, got %s", e.ID)
	}
}

func TestBuildNeverReusesID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		e := newEntry("reason", "rec", "run", 0, 1, model.OutcomeSuccess, "")
		if seen[e.ID] {
			t.Fatalf("duplicate id on call %d: %s", i, e.ID)
		}
		seen[e.ID] = true
	}
}

func TestBuildUsesInjectedClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 123_000_000, time.UTC)
	b := Builder{Now: func() time.Time { return at }, ConfigHash: "sha256:cfg"}

	e := b.Build("reason", "rec", "run", 0, 1, model.OutcomeSuccess, "")
	if e.Timestamp != "2026-03-01T09:30:00.123Z" {
		t.Errorf("unexpected timestamp %s", e.Timestamp)
	}
	if !e.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", e.Time(), at)
	}
	if e.ConfigHash != "sha256:cfg" {
		t.Errorf("expected config hash to be stamped, got %q", e.ConfigHash)
	}
	if e.Line() != "2026-03-01T09:30:00.123Z Ticket 1/1 success" {
		t.Errorf("unexpected report line %q", e.Line())
	}
}

func TestRecordDoesNotMutateCallerEntry(t *testing.T) {
	l, _ := newTestLog(t)
	defer l.Close()

	e := newEntry("restart per SOP X", "A", "run-1", 0, 1, model.OutcomeSuccess, "")
	if err := l.Record(e); err != nil {
		t.Fatal(err)
	}
	if e.PrevHash != "" {
		t.Fatalf("expected caller entry untouched, got prev_hash %s", e.PrevHash)
	}
}

func TestHaltedAndCompletedRunsVerify(t *testing.T) {
	l, path := newTestLog(t)
	recordRun(t, l, "run-halt", []string{"A", "B", "C", "D", "E"}, 2)
	recordRun(t, l, "run-done", []string{"F", "G"}, -1)
	l.Close()

	got := Verify(path)
	want := VerifyResult{Valid: true, Lines: 5, Runs: 2, Halted: 1}
	if got != want {
		t.Fatalf("Verify = %+v, want %+v", got, want)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	recordRun(t, l, "run-1", []string{"A", "B", "C"}, -1)
	l.Close()

	lines := readLines(t, path)
	lines[1] = strings.Replace(lines[1], `"record_id":"B"`, `"record_id":"Z"`, 1)
	writeLines(t, path, lines)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 || !strings.HasPrefix(result.Error, "hash mismatch") {
		t.Fatalf("expected hash mismatch at line 3, got line %d: %s", result.ErrorLine, result.Error)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	recordRun(t, l, "run-1", []string{"A", "B", "C"}, -1)
	l.Close()

	lines := readLines(t, path)
	writeLines(t, path, []string{lines[0], lines[2]})

	result := Verify(path)
	if result.Valid || result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got %+v", result)
	}
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)
	recordRun(t, l, "run-1", []string{"A", "B", "C"}, -1)
	l.Close()

	lines := readLines(t, path)
	fake := newEntry("restart per SOP X", "Z", "run-1", 1, 3, model.OutcomeSuccess, "")
	fake.PrevHash = "sha256:fake"
	fakeJSON, _ := json.Marshal(fake)
	writeLines(t, path, []string{lines[0], string(fakeJSON), lines[1], lines[2]})

	result := Verify(path)
	if result.Valid || result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got %+v", result)
	}
}

func TestVerifyDetectsRunSequenceViolations(t *testing.T) {
	tests := []struct {
		name    string
		entries []AuditEntry
		errLine int
		errText string
	}{
		{
			name: "skipped step",
			entries: []AuditEntry{
				newEntry("m", "A", "r", 0, 3, model.OutcomeSuccess, ""),
				newEntry("m", "C", "r", 2, 3, model.OutcomeSuccess, ""),
			},
			errLine: 2,
			errText: "run r: step 3 follows step 1",
		},
		{
			name: "step after halt",
			entries: []AuditEntry{
				newEntry("m", "A", "r", 0, 3, model.OutcomeFailed, HaltNote),
				newEntry("m", "B", "r", 1, 3, model.OutcomeSuccess, ""),
			},
			errLine: 2,
			errText: "run r: step 2 recorded after halt",
		},
		{
			name: "master reason drift",
			entries: []AuditEntry{
				newEntry("m", "A", "r", 0, 2, model.OutcomeSuccess, ""),
				newEntry("other", "B", "r", 1, 2, model.OutcomeSuccess, ""),
			},
			errLine: 2,
			errText: "run r: master reason changed at step 2",
		},
		{
			name: "total drift",
			entries: []AuditEntry{
				newEntry("m", "A", "r", 0, 2, model.OutcomeSuccess, ""),
				newEntry("m", "B", "r", 1, 4, model.OutcomeSuccess, ""),
			},
			errLine: 2,
			errText: "run r: total changed from 2 to 4",
		},
		{
			name: "run not starting at step 1",
			entries: []AuditEntry{
				newEntry("m", "B", "r", 1, 2, model.OutcomeSuccess, ""),
			},
			errLine: 1,
			errText: "run r: step 2 follows step 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, path := newTestLog(t)
			for _, e := range tt.entries {
				if err := l.Record(e); err != nil {
					t.Fatal(err)
				}
			}
			l.Close()

			result := Verify(path)
			if result.Valid {
				t.Fatal("expected violation")
			}
			if result.ErrorLine != tt.errLine || result.Error != tt.errText {
				t.Errorf("got line %d %q, want line %d %q", result.ErrorLine, result.Error, tt.errLine, tt.errText)
			}
		})
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	writeLines(t, path, nil)

	result := Verify(path)
	if !result.Valid || result.Lines != 0 {
		t.Fatalf("expected empty log to be valid, got %+v", result)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "missing.jsonl"))
	if result.Valid || !strings.HasPrefix(result.Error, "read:") {
		t.Fatalf("expected read error, got %+v", result)
	}
}

func TestConcurrentRunsSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Record(newEntry("m", "A", fmt.Sprintf("run-%d", i), 0, 1, model.OutcomeSuccess, ""))
		}(i)
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 50 || result.Runs != 50 {
		t.Fatalf("expected 50 valid single-step runs, got %+v", result)
	}
}

func TestFirstEntryChainsToGenesis(t *testing.T) {
	l, path := newTestLog(t)
	recordRun(t, l, "run-1", []string{"A"}, -1)
	l.Close()

	var entry AuditEntry
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected genesis hash %s, got %s", GenesisHash, entry.PrevHash)
	}
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"id":"bulk-audit-r-0-x","run_id":"r","record_id":"a","master_reason":"m","index":1,"total":2,"outcome":"success","ts":"2025-01-15T10:30:00.000Z"}`)
	h := HashLine(line)
	if h != HashLine(line) {
		t.Fatal("expected same hash for same input")
	}
	if !strings.HasPrefix(h, "sha256:") || len(h) != 7+64 {
		t.Fatalf("unexpected hash format %s", h)
	}
}

func TestReopenedLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	recordRun(t, l1, "run-1", []string{"A", "B", "C"}, -1)
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	recordRun(t, l2, "run-2", []string{"D", "E"}, 1)
	l2.Close()

	got := Verify(path)
	want := VerifyResult{Valid: true, Lines: 5, Runs: 2, Halted: 1}
	if got != want {
		t.Fatalf("Verify = %+v, want %+v", got, want)
	}
}
