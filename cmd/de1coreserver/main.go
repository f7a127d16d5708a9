// Package main is the de1coreserver entry point: a cobra CLI that wires
// together the transport, device session, shot history, backup, and
// companion server subsystems described in SPEC_FULL.md.
//
// # File Index
//
//   - main.go       - rootCmd, global flags, init(), shared config/logging bootstrap
//   - cmd_serve.go  - serveCmd: device connect, engine wiring, HTTP(S) server, schedulers
//   - cmd_backup.go - backupCmd/restoreCmd: one-shot archive creation and restore
//   - cmd_config.go - configCmd: print/initialize the YAML config file
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/decenza/de1core/internal/config"
	"github.com/decenza/de1core/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string

	// cfg is loaded once in PersistentPreRunE and shared by every subcommand.
	cfg *config.Config

	// logger is the CLI-facing structured logger; internal/logging is a
	// separate, file-based telemetry logger initialized alongside it.
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "de1coreserver",
	Short: "Decenza device core: DE1 transport, shot history, backup, and companion server",
	Long: `de1coreserver bridges a Decent DE1 espresso machine (and an optional
Bluetooth scale) to the Decenza companion app: it speaks the DE1's binary
BLE/serial protocol, records shot history, creates and restores encrypted-at-
rest-free local backups, and serves the companion HTTP(S)/SSE API described
in SPEC_FULL.md.

Run "de1coreserver serve" to start the core process.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dataDir != "" {
			loaded.DataDir = dataDir
		}
		cfg = loaded

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		if err := logging.Initialize(cfg.DataDir, cfg.Logging.DebugMode, cfg.Logging.Level, cfg.Logging.Format == "json"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
		logging.CloseAudit()
	},
}

func init() {
	home, _ := os.UserHomeDir()
	defaultConfigPath := filepath.Join(home, ".decenza", "config.yaml")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the configured data directory")

	rootCmd.AddCommand(serveCmd, backupCmd, restoreCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
