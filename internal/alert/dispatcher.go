package alert

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/model"
)

// Dispatcher fans out events to matching webhooks. Sends run in the
// background; Wait blocks until they finish.
type Dispatcher struct {
	hooks  []Webhook
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for hooks. Returns nil if hooks is
// empty; a nil Dispatcher drops every event.
func NewDispatcher(hooks []Webhook, logger *zap.Logger) *Dispatcher {
	if len(hooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{hooks: hooks, logger: logger}
}

// Dispatch sends event to every webhook subscribed to its type. It does
// not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(audit.TimestampFormat)
	}
	for _, hook := range d.hooks {
		if !slices.Contains(hook.Events, event.Type) {
			continue
		}
		d.wg.Add(1)
		go func(hook Webhook) {
			defer d.wg.Done()
			if err := Send(context.Background(), hook, event); err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("type", event.Type),
					zap.String("record_id", event.RecordID),
					zap.Error(err))
			}
		}(hook)
	}
}

// Record turns the failed step of a bulk run into a halted event, so a
// Dispatcher can sit next to the audit log as an entry sink.
func (d *Dispatcher) Record(entry audit.AuditEntry) error {
	if entry.Outcome != model.OutcomeFailed {
		return nil
	}
	d.Dispatch(Event{
		Timestamp:  entry.Timestamp,
		Type:       EventHalted,
		RecordID:   entry.RecordID,
		RunID:      entry.RunID,
		Step:       entry.Index,
		Total:      entry.Total,
		Reason:     entry.MasterReason,
		ConfigHash: entry.ConfigHash,
	})
	return nil
}

// Wait blocks until all dispatched sends complete.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
