package model

import "testing"

func TestSameClassRequiresCodeAndNode(t *testing.T) {
	a := Record{ID: "a", ErrorCode: "0x80040115", NodeID: "Node_3"}

	tests := []struct {
		name  string
		other Record
		want  bool
	}{
		{"same code and node", Record{ID: "b", ErrorCode: "0x80040115", NodeID: "Node_3"}, true},
		{"different node", Record{ID: "c", ErrorCode: "0x80040115", NodeID: "Node_4"}, false},
		{"different code", Record{ID: "d", ErrorCode: "0x80070005", NodeID: "Node_3"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.SameClass(tt.other); got != tt.want {
				t.Errorf("SameClass = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFixKindValid(t *testing.T) {
	if !FixRestart.Valid() || !FixEscalate.Valid() {
		t.Error("expected both remediation kinds to be valid")
	}
	if FixKind("").Valid() {
		t.Error("expected empty fix kind to be invalid")
	}
	if FixKind("reboot").Valid() {
		t.Error("expected unknown fix kind to be invalid")
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunCompleted, RunHalted, RunAborted} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunIdle, RunRunning} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
