package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/autoheal/internal/mcp"
	"github.com/ppiankov/autoheal/internal/policy"
)

var (
	mcpRecords int
	mcpSeed    uint64
	mcpWatch   bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().IntVar(&mcpRecords, "records", 25, "Number of synthetic records to start with")
	mcpCmd.Flags().Uint64Var(&mcpSeed, "seed", 0, "Seed for synthetic records")
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", true, "Hot-reload the guardrail config file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs autoheal as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: logs, select, troubleshoot, approve, execute, apply_all,\n" +
		"abort, status, report, pending.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	holder, err := loadHolder()
	if err != nil {
		return err
	}
	cfg := holder.Load().Config

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := mcp.New(ctx, mcp.Config{
		Holder:       holder,
		ConfigPath:   configPath,
		AuditLogPath: cfg.AuditLog,
		StateDB:      cfg.StateDB,
		ApprovalDir:  cfg.ApprovalDir,
		RecordCount:  mcpRecords,
		Seed:         mcpSeed,
		Explainer:    newExplainer(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return srv.Run(gctx)
	})

	if mcpWatch {
		path := configPath
		if path == "" {
			path = policy.DefaultPath()
		}
		w, err := policy.NewWatcher(holder, path, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.String("path", path), zap.Error(err))
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	fmt.Fprintln(os.Stderr, "autoheal MCP server running on stdio")
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
