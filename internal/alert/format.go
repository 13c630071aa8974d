package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Record:* %s", event.RecordID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Node:* %s", event.Node)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
	}
	if event.RunID != "" {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Run:* %s (step %d of %d)", event.RunID, event.Step, event.Total),
		})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("autoheal: %s", event.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    event.Type + ":" + event.RecordID,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("autoheal %s: %s on %s", event.Type, event.RecordID, event.Node),
			"severity": severityFor(event.Type),
			"source":   "autoheal",
			"custom_details": map[string]any{
				"record_id": event.RecordID,
				"node":      event.Node,
				"run_id":    event.RunID,
				"step":      event.Step,
				"total":     event.Total,
				"reason":    event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(eventType string) string {
	switch eventType {
	case EventHalted:
		return "error"
	case EventApprovalRequired, EventEscalated:
		return "warning"
	default:
		return "info"
	}
}
