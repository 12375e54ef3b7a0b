package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marveldaemon/mhd/internal/config"
	"github.com/marveldaemon/mhd/internal/daemon"
	"github.com/marveldaemon/mhd/internal/evaluator"
	"github.com/marveldaemon/mhd/internal/learned"
	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/pathutil"
	"github.com/marveldaemon/mhd/internal/rules"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hook daemon for the current project",
	Long: `serve resolves the project root, loads its security rule sets and
configuration, and listens on a project-scoped Unix socket for hook
events until every attached session has ended and the shutdown-grace
period elapses, or until it receives SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("foreground", false, "Stay attached to the terminal instead of detaching (no-op; hookd never daemonizes itself)")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(serveDir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	root, err := pathutil.FindProjectRoot(dir)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	secDir := pathutil.SecurityDir(root)
	allow, err := rules.Load(filepath.Join(secDir, "allowlist.json"), nil)
	if err != nil {
		return fmt.Errorf("load allowlist: %w", err)
	}
	deny, err := rules.Load(filepath.Join(secDir, "denylist.json"), nil)
	if err != nil {
		return fmt.Errorf("load denylist: %w", err)
	}
	store, err := learned.Open(filepath.Join(secDir, "learned.json"))
	if err != nil {
		return fmt.Errorf("open learned-rules store: %w", err)
	}

	eval := evaluator.New(cfg.Evaluator.URL)

	d := daemon.New(root, cfg, allow, deny, store, eval)

	srv, err := daemon.Listen(d)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idle := make(chan struct{})
	d.SetOnIdle(func() {
		select {
		case <-idle:
		default:
			close(idle)
		}
	})

	d.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Info().Str("root", root).Msg("hookd listening")

	select {
	case <-idle:
		logging.Info().Msg("hookd idle, shutting down")
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("hookd received signal, shutting down")
	case err := <-serveErr:
		if err != nil {
			logging.Error().Err(err).Msg("hookd socket server exited")
		}
	}

	cancel()
	d.Shutdown()
	srv.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	select {
	case <-serveErr:
	case <-shutdownCtx.Done():
	}

	return nil
}
