package commands

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marveldaemon/mhd/internal/pathutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a hook daemon is running for this project",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	fmt.Printf("hookd: running for %s (pid %d)\n", root, pid)
	return nil
}

// readPid reads the project's PID file and reports whether that process
// still exists. A stale PID file (process gone, file left behind by an
// unclean shutdown) reads as not running.
func readPid(root string) (int, bool, error) {
	pidPath, err := pathutil.PidPath(root)
	if err != nil {
		return 0, false, fmt.Errorf("resolve pid path: %w", err)
	}
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read pid file: %w", err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		return 0, false, nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, false, nil
	}
	return pid, true, nil
}
