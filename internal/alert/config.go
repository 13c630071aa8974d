// Package alert posts remediation events to webhooks so a halted run or a
// pending four-eyes approval reaches a human without polling.
package alert

// Event types.
const (
	EventHalted           = "halted"
	EventApprovalRequired = "approval_required"
	EventEscalated        = "escalated"
)

// Webhook defines an alert destination.
type Webhook struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["halted", "approval_required", "escalated"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	RecordID   string `json:"record_id"`
	Node       string `json:"node,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Step       int    `json:"step,omitempty"`
	Total      int    `json:"total,omitempty"`
	Reason     string `json:"reason"`
	ConfigHash string `json:"config_hash,omitempty"`
}
