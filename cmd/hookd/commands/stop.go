package commands

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marveldaemon/mhd/internal/pathutil"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the hook daemon running for this project",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(serveDir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	root, err := pathutil.FindProjectRoot(dir)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	pid, running, err := readPid(root)
	if err != nil {
		return err
	}
	if !running {
		fmt.Printf("hookd: not running for %s\n", root)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	for i := 0; i < 20; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, stillRunning, _ := readPid(root); !stillRunning {
			fmt.Printf("hookd: stopped (pid %d)\n", pid)
			return nil
		}
	}

	fmt.Printf("hookd: sent SIGTERM to pid %d, still shutting down\n", pid)
	return nil
}
