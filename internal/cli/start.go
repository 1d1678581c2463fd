package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/halwind/mnemo/internal/config"
	"github.com/halwind/mnemo/internal/daemon"
	"github.com/halwind/mnemo/internal/logger"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Mnemo daemon service",
	Long: `Start the Mnemo daemon service in the foreground.
The daemon runs the short-term cleanup loop, watches the document drop
directory when enabled, and serves Prometheus metrics. It stops on
SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := pidFilePath(cfg)
	if pid, ok := readPID(pidFile); ok && processExists(pid) {
		return fmt.Errorf("daemon is already running (PID %d)", pid)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	fmt.Println("Starting Mnemo daemon...")
	return d.Run()
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "mnemo.pid")
}

func readPID(pidFile string) (int, bool) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	err = process.Signal(os.Signal(nil))
	return err == nil
}
