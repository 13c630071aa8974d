package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/alert"
	"github.com/ppiankov/autoheal/internal/approval"
	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/remediate"
	"github.com/ppiankov/autoheal/internal/session"
)

// runtime is a session wired to the stores named in the guardrail config.
type runtime struct {
	session  *session.Session
	auditLog *audit.Log
	sqlite   *fixset.SQLite
}

func openRuntime(ctx context.Context, holder *policy.Holder, records []model.Record) (*runtime, error) {
	cfg := holder.Load().Config
	rt := &runtime{}

	dir := cfg.ApprovalDir
	if dir == "" {
		dir = approval.DefaultDir()
	}
	approvals, err := approval.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}

	var fixed fixset.Set = fixset.NewMemory()
	if cfg.StateDB != "" {
		if rt.sqlite, err = fixset.OpenSQLite(ctx, cfg.StateDB); err != nil {
			return nil, fmt.Errorf("failed to open state db: %w", err)
		}
		fixed = rt.sqlite
	}

	alerts := alert.NewDispatcher(cfg.Alerts, logger)
	var sinks remediate.Sinks
	if cfg.AuditLog != "" {
		if rt.auditLog, err = audit.Open(cfg.AuditLog); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, rt.auditLog)
	}
	if alerts != nil {
		sinks = append(sinks, alerts)
	}
	opts := remediate.Options{Fixed: fixed, Sink: sinks, Logger: logger}

	rt.session = session.New(records, session.Options{
		Explainer:    newExplainer(),
		Config:       holder,
		Orchestrator: remediate.New(opts),
		Approvals:    approvals,
		Alerts:       alerts,
		Logger:       logger,
	})
	return rt, nil
}

// Close waits for running work and releases the stores.
func (rt *runtime) Close() error {
	var errs []error
	if rt.session != nil {
		errs = append(errs, rt.session.Wait(context.Background()))
	}
	if rt.auditLog != nil {
		errs = append(errs, rt.auditLog.Close())
	}
	if rt.sqlite != nil {
		errs = append(errs, rt.sqlite.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("runtime close", zap.Error(err))
		return err
	}
	return nil
}
