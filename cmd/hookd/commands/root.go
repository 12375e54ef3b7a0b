// Package commands provides the CLI commands for the hook daemon.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marveldaemon/mhd/internal/logging"
)

var (
	// Version information set at build time.
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs bool
	logLevel  string
	logFile   bool
	serveDir  string
)

var rootCmd = &cobra.Command{
	Use:   "hookd",
	Short: "Per-project hook daemon for an AI coding assistant",
	Long: `hookd listens on a project-scoped Unix socket for coding-assistant
hook events, injects relevant knowledge-pack guidance before edits, gates
bash commands through a layered security policy, and tracks subagent and
teammate lifecycles for one project at a time.

Run 'hookd serve' to start the daemon, or 'hookd status'/'hookd stop' to
inspect or tear down an already-running instance for the current project.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to /tmp/mhd-YYYYMMDD-HHMMSS.log")
	rootCmd.PersistentFlags().StringVar(&serveDir, "directory", "", "Project directory (defaults to the current working directory)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("hookd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from the --directory flag or
// the process's current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
