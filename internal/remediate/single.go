package remediate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/model"
)

// FixSteps returns the narration of a single fix. Nil for an invalid kind.
func FixSteps(kind model.FixKind, node string) []string {
	switch kind {
	case model.FixEscalate:
		return []string{
			"Escalating to TCC (BMCC - EDA Prod Batch)...",
			"Request sent. Awaiting job restart.",
			"Closure email queued.",
			"Done.",
		}
	case model.FixRestart:
		return []string{
			fmt.Sprintf("Sequential restart: %s...", node),
			"Shutting down worker process...",
			"Starting worker process...",
			"Verifying workflow state...",
			"Done.",
		}
	}
	return nil
}

// FixRunner applies one fix to one record. Single fixes have no failure
// outcome; only cancellation stops them.
type FixRunner struct {
	Interval time.Duration
	Fixed    fixset.Set
	Logger   *zap.Logger
	// Commit is called once the narration is complete, before the record
	// is marked. Returning false cancels the fix. Nil always commits.
	Commit func() bool
}

// ExecuteFix emits the fix narration, one line per Interval, then marks
// rec fixed. progress may be nil. An invalid kind is a no-op. If ctx ends
// first the record stays unfixed and ctx's error is returned with the
// lines emitted so far.
func (f *FixRunner) ExecuteFix(ctx context.Context, rec model.Record, kind model.FixKind, progress func(string)) ([]string, error) {
	steps := FixSteps(kind, rec.NodeID)
	if steps == nil || rec.ID == "" {
		return nil, nil
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lines := make([]string, 0, len(steps))
	for i, step := range steps {
		wait := f.Interval
		if i == 0 {
			wait /= 2
		}
		if err := sleep(ctx, wait); err != nil {
			logger.Warn("single fix interrupted", zap.String("record_id", rec.ID), zap.Error(err))
			return lines, err
		}
		lines = append(lines, step)
		if progress != nil {
			progress(step)
		}
	}

	if f.Commit != nil && !f.Commit() {
		logger.Warn("single fix not committed", zap.String("record_id", rec.ID))
		return lines, context.Canceled
	}
	if f.Fixed != nil {
		if err := f.Fixed.Mark(ctx, rec.ID); err != nil {
			return lines, fmt.Errorf("remediate: mark %s fixed: %w", rec.ID, err)
		}
	}
	logger.Info("single fix executed",
		zap.String("record_id", rec.ID),
		zap.String("node", rec.NodeID),
		zap.String("kind", string(kind)))
	return lines, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
