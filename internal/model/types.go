package model

import "time"

// Severity is the log level tag carried by a grid error record.
type Severity string

const (
	SevFatal Severity = "FATAL"
	SevError Severity = "ERROR"
	SevWarn  Severity = "WARN"
)

// Metadata is the contextual breadcrumb block attached to a record.
type Metadata struct {
	Folder             string `json:"folder"`
	IntegrationService string `json:"integration_service"`
	SourceSystem       string `json:"source_system"`
	TargetTable        string `json:"target_table,omitempty"`
}

// Record is one incident emitted by the integration grid. Records are
// immutable once generated; remediation state lives in the fixed set.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Severity     Severity  `json:"severity"`
	NodeID       string    `json:"node_id"`
	WorkflowName string    `json:"workflow_name"`
	SessionID    string    `json:"session_id"`
	TaskName     string    `json:"task_name"`
	ErrorCode    string    `json:"error_code"`
	Message      string    `json:"message"`
	RawLog       string    `json:"raw_log"`
	Metadata     Metadata  `json:"metadata"`
}

// SameClass reports whether other shares this record's classification key
// (error code) and location key (node).
func (r Record) SameClass(other Record) bool {
	return r.ErrorCode == other.ErrorCode && r.NodeID == other.NodeID
}

// FixKind classifies the remediation approach for a record.
type FixKind string

const (
	FixRestart  FixKind = "immediate-restart"
	FixEscalate FixKind = "escalate-to-third-party"
)

// Valid reports whether k is one of the two remediation kinds.
func (k FixKind) Valid() bool {
	return k == FixRestart || k == FixEscalate
}

// Proposal is the successful output of the reasoning step for one record.
// Justification becomes the master reason of any bulk run it authorizes.
type Proposal struct {
	RecordID      string   `json:"record_id"`
	Justification string   `json:"justification"`
	Confidence    int      `json:"confidence"`
	Steps         []string `json:"steps,omitempty"`
	ToolTrace     []string `json:"tool_trace,omitempty"`
	Kind          FixKind  `json:"kind"`
}

// Outcome is the result recorded for one remediation step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// RunStatus is the orchestrator state of a bulk run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunHalted    RunStatus = "halted"
	RunAborted   RunStatus = "aborted"
)

// Terminal reports whether no further steps may be issued in this status.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunHalted || s == RunAborted
}
