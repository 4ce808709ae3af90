// Command termmux-hub is a standalone terminal multiplexer process: it
// mediates between a GUI front-end and one or more interactive shell
// sessions, reached either as a locally spawned PTY or over SSH.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trybotster/termmux-hub/internal/config"
	"github.com/trybotster/termmux-hub/internal/dispatcher"
	"github.com/trybotster/termmux-hub/internal/notifier"
	"github.com/trybotster/termmux-hub/internal/pump"
	"github.com/trybotster/termmux-hub/internal/registry"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var logLevelFlag string

	rootCmd := &cobra.Command{
		Use:     "termmux-hub",
		Short:   "Terminal multiplexer session broker",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logLevelFlag)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (overrides TERMMUX_LOG_LEVEL)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run wires the ambient stack and the core components together and drives
// the dispatcher on stdin/stdout until EOF. Flags and environment only ever
// configure this wiring; the dispatcher itself never sees them.
func run(logLevelFlag string) error {
	cfg := config.Load()
	if logLevelFlag != "" {
		if parsed, ok := config.ParseLogLevel(logLevelFlag); ok {
			cfg.LogLevel = parsed
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	pumpCfg := pump.DefaultConfig()
	pumpCfg.MaxClipboard = cfg.MaxClipboard
	pumpCfg.BufferSize = cfg.PumpBufferSize

	notifications := notifier.New()
	reg := registry.New(notifications, logger, pumpCfg)
	disp := dispatcher.New(reg, notifications, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("termmux-hub starting")
	err := disp.Run(ctx, os.Stdin, os.Stdout)
	logger.Info("termmux-hub exiting", "error", err)
	return err
}
