package reasoning

import (
	"fmt"
	"strings"
)

// SOP is one standard operating procedure keyed by grid error code.
type SOP struct {
	ErrorCode  string   `json:"error_code"`
	Title      string   `json:"title"`
	Trigger    string   `json:"trigger"`
	Steps      []string `json:"steps"`
	Escalation string   `json:"escalation,omitempty"`
	// Escalates marks procedures whose primary remediation is handing the
	// job to the third-party batch team rather than restarting a node.
	Escalates bool `json:"escalates,omitempty"`
}

var sops = []SOP{
	{
		ErrorCode: "0x80040115",
		Title:     "FATAL ERROR: caught a fatal signal of exception",
		Trigger:   "FATAL ERROR: caught a fatal signal of exception",
		Steps: []string{
			"Open Workflow Monitor in Informatica Admin Console",
			"Extract full log for the failed session",
			"Verify Workflow/Folder details via ESP Work Directory",
			"Check for OOM or resource exhaustion; restart the failed node if needed",
			"Hand over to TCC if issue persists after restart",
		},
		Escalation: "Contact TCC (BMCC - EDA Prod Batch) for job restart and closure email.",
	},
	{
		ErrorCode: "0x80070005",
		Title:     "Access Denied / Permission Error",
		Trigger:   "Access denied or insufficient permissions",
		Steps: []string{
			"Verify folder permissions in ESP Work Directory",
			"Check file system permissions for source/target paths",
			"Validate service account has read/write access to staging areas",
			"Raise with Infra if permission changes are required",
		},
	},
	{
		ErrorCode: "0x80070003",
		Title:     "Path Not Found / File System Error",
		Trigger:   "The system cannot find the path specified",
		Steps: []string{
			"Verify source/target file paths exist and are accessible",
			"Check for typos in mapping expressions",
			"Validate network drives are mounted and available",
			"Review recent folder or path changes in the workflow",
		},
	},
	{
		ErrorCode: "0xC0042003",
		Title:     "File Writer / Transformation Error",
		Trigger:   "Failure in File Writer job",
		Steps: []string{
			"Inspect File Writer transformation configuration",
			"Verify target directory exists and is writable",
			"Check for data truncation or type mismatch in columns",
		},
		Escalation: "Contact TCC (BMCC - EDA Prod Batch) to request job restart and send closure email.",
		Escalates:  true,
	},
}

// DefaultSOP is returned for codes missing from the knowledge base.
var DefaultSOP = SOP{
	ErrorCode: "UNKNOWN",
	Title:     "Generic Fatal Error",
	Trigger:   "Unrecognized fatal error",
	Steps: []string{
		"Open Workflow Monitor and extract the full log",
		"Search for error hex codes (e.g. 0x80040115) in the log",
		"Cross-reference with SOP knowledge base using the error code",
		"Apply recommended remediation steps for the matching code",
		"Hand over to TCC if no matching SOP or issue persists",
	},
}

// LookupSOP returns the procedure for code, matching case-insensitively.
// The second result is false when DefaultSOP was returned.
func LookupSOP(code string) (SOP, bool) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	for _, s := range sops {
		if strings.ToLower(s.ErrorCode) == normalized {
			return s, true
		}
	}
	return DefaultSOP, false
}

// Format renders the procedure as plain text.
func (s SOP) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", s.ErrorCode, s.Title)
	fmt.Fprintf(&b, "Trigger: %s\n", s.Trigger)
	b.WriteString("Steps:\n")
	for i, step := range s.Steps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
	}
	if s.Escalation != "" {
		fmt.Fprintf(&b, "Escalation: %s\n", s.Escalation)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
