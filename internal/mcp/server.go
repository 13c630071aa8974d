package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/autoheal/internal/alert"
	"github.com/ppiankov/autoheal/internal/approval"
	"github.com/ppiankov/autoheal/internal/audit"
	"github.com/ppiankov/autoheal/internal/fixset"
	"github.com/ppiankov/autoheal/internal/policy"
	"github.com/ppiankov/autoheal/internal/reasoning"
	"github.com/ppiankov/autoheal/internal/remediate"
	"github.com/ppiankov/autoheal/internal/session"
	"github.com/ppiankov/autoheal/internal/synth"
)

const (
	defaultRecordCount = 25
	approvalRetention  = 7 * 24 * time.Hour
)

// Config holds MCP server configuration.
type Config struct {
	// Holder supplies the guardrail config. When nil, ConfigPath is loaded.
	Holder       *policy.Holder
	ConfigPath   string
	AuditLogPath string
	StateDB      string
	ApprovalDir  string
	RecordCount  int
	Seed         uint64
	Explainer    reasoning.Explainer
	Logger       *zap.Logger
}

// Server exposes an autoheal session as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	session   *session.Session
	holder    *policy.Holder
	approvals *approval.Store
	auditLog  *audit.Log
	sqlite    *fixset.SQLite
	generator *synth.Generator
	logger    *zap.Logger
}

// New creates an MCP server with a session over generated records.
func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	holder := cfg.Holder
	if holder == nil {
		pc, hash, err := policy.LoadConfigWithHash(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load guardrail config: %w", err)
		}
		holder = policy.NewHolder(pc, hash)
	}

	approvalDir := cfg.ApprovalDir
	if approvalDir == "" {
		approvalDir = approval.DefaultDir()
	}
	approvalStore, err := approval.NewStore(approvalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval store: %w", err)
	}
	if n, err := approvalStore.Cleanup(approvalRetention); err != nil {
		logger.Warn("approval cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Debug("pruned resolved approvals", zap.Int("count", n))
	}

	s := &Server{
		holder:    holder,
		approvals: approvalStore,
		generator: synth.New(cfg.Seed, nil),
		logger:    logger,
	}

	var fixed fixset.Set = fixset.NewMemory()
	if cfg.StateDB != "" {
		s.sqlite, err = fixset.OpenSQLite(ctx, cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open state db: %w", err)
		}
		fixed = s.sqlite
	}

	alerts := alert.NewDispatcher(holder.Load().Config.Alerts, logger)
	var sinks remediate.Sinks
	if cfg.AuditLogPath != "" {
		s.auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, s.auditLog)
	}
	if alerts != nil {
		sinks = append(sinks, alerts)
	}
	opts := remediate.Options{Fixed: fixed, Sink: sinks, Logger: logger}

	count := cfg.RecordCount
	if count <= 0 {
		count = defaultRecordCount
	}
	s.session = session.New(s.generator.Records(count), session.Options{
		Explainer:    cfg.Explainer,
		Config:       holder,
		Orchestrator: remediate.New(opts),
		Approvals:    approvalStore,
		Alerts:       alerts,
		Logger:       logger,
	})

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "autoheal",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Session returns the session the tools operate on.
func (s *Server) Session() *session.Session {
	return s.session
}

// Close waits for running steps and releases the audit log and state db.
func (s *Server) Close() error {
	if s.session != nil {
		s.session.Wait(context.Background())
	}
	var firstErr error
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			firstErr = err
		}
	}
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerTools adds all autoheal tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_logs",
		Description: "List grid error records with their fixed state. Optionally generate new records first.",
	}, s.handleLogs)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_select",
		Description: "Select a record as the remediation target. Changing the selection discards the proposal, approval and run.",
	}, s.handleSelect)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_troubleshoot",
		Description: "Explain the selected record's error and propose a fix, with similar records and impact.",
	}, s.handleTroubleshoot)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_approve",
		Description: "Confirm a master node restart as second approver. Requires a non-empty approver name.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_execute",
		Description: "Apply the proposed fix to the selected record only.",
	}, s.handleExecute)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_apply_all",
		Description: "Apply the proposed fix to the selected record and all similar records, one at a time, halting on the first failure.",
	}, s.handleApplyAll)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_abort",
		Description: "Abort the running fix. Steps already recorded are kept.",
	}, s.handleAbort)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_status",
		Description: "Show execution state, progress, narration and audit entries. Optionally wait for the run to finish.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_report",
		Description: "Render the incident audit report for a finished fix, optionally saving it to a directory.",
	}, s.handleReport)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "autoheal_pending",
		Description: "List second-approval requests in the approval ledger.",
	}, s.handlePending)
}
