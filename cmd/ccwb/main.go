// Command ccwb is the interactive terminal workbench: it wraps a child
// conversational CLI agent in a split-pane view, snapshotting the
// workspace after every prompt and projecting context-window and quota
// usage alongside the child's own output. One root command launches the
// engine; `version` and `config` are the only subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Siiichenggg/cc-workbench/internal/config"
	"github.com/Siiichenggg/cc-workbench/internal/engine"
	"github.com/Siiichenggg/cc-workbench/internal/logx"
	"github.com/Siiichenggg/cc-workbench/internal/ptypump"
	"github.com/Siiichenggg/cc-workbench/internal/quota"
	"github.com/Siiichenggg/cc-workbench/internal/sessionlog"
	"github.com/Siiichenggg/cc-workbench/internal/snapshot"
	"github.com/Siiichenggg/cc-workbench/internal/view"
	"github.com/Siiichenggg/cc-workbench/internal/vstore"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "ccwb [engine-args] -- <child-args…>",
		Short: "cc-workbench — a split-pane terminal wrapper around a conversational CLI agent",
		Args:  cobra.ArbitraryArgs,
		RunE:  runEngine,
	}
	root.AddCommand(versionCmd(), configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ccwb:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the engine version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("ccwb", version)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration for the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.Load(ws)
			if err != nil {
				return err
			}
			path := config.Path(ws)
			if path == "" {
				path = "(none — using defaults)"
			}
			fmt.Printf("source:              %s\n", path)
			fmt.Printf("context_limit:       %d\n", cfg.ContextLimit)
			fmt.Printf("compress_threshold:  %.2f\n", cfg.CompressThreshold)
			fmt.Printf("usage_poll_seconds:  %d\n", cfg.UsagePollSeconds)
			fmt.Printf("providers:           %d configured\n", len(cfg.Resolved))
			return nil
		},
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	dashAt := cmd.ArgsLenAtDash()
	var childArgs []string
	if dashAt >= 0 {
		childArgs = args[dashAt:]
	}

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	if err := config.EnsureDataDir(workspace); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	dataDir := config.DataDir(workspace)

	logger, closeLog, err := logx.New(filepath.Join(dataDir, "ccwb.log"), "info")
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	cfg, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	childCmd, err := resolveChildCommand()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cols, rows := 80, 24
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			cols, rows = w, h
		}
	}

	store, err := vstore.Open(ctx, workspace)
	if err != nil {
		return fmt.Errorf("open version store: %w", err)
	}

	log, err := sessionlog.Open(filepath.Join(dataDir, "ccwb.sqlite"))
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer log.Close()

	workspaceID, err := log.OpenWorkspace(workspace)
	if err != nil {
		return fmt.Errorf("register workspace: %w", err)
	}
	sessionID, err := log.StartSession(workspaceID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	paneW, paneH := view.PaneSize(cols, rows)
	pump, err := ptypump.Start(ctx, childCmd, childArgs, workspace, paneW, paneH)
	if err != nil {
		return fmt.Errorf("start child agent: %w", err)
	}
	defer pump.Close()

	snapEngine := snapshot.New(ctx, store, logger, 16)
	agg := quota.New(ctx, cfg.Resolved, logger)
	cfgCh, err := config.Watch(ctx, workspace, logger)
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	e := engine.New(engine.Deps{
		Pump:      pump,
		Snapshots: snapEngine,
		Quota:     agg,
		Log:       log,
		Config:    cfg,
		ConfigCh:  cfgCh,
		Workspace: workspace,
		DataDir:   dataDir,
		SessionID: sessionID,
		Logger:    logger,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
	}, cols, rows)

	return e.Run(ctx)
}

// resolveChildCommand determines the child agent's executable path: the
// CCWB_CLAUDE_CMD env var, else a sibling "claude.real" next to this
// executable, else "claude" resolved on PATH.
func resolveChildCommand() (string, error) {
	if v := os.Getenv("CCWB_CLAUDE_CMD"); v != "" {
		return v, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "claude.real")
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	path, err := exec.LookPath("claude")
	if err != nil {
		return "", fmt.Errorf("resolve child agent command: %w", err)
	}
	return path, nil
}
