// Package cmd defines the bpxd command line interface.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/bpx-store/bpxd/internal/flags"
)

var version = "dev" // Set at build time using -ldflags

// Version returns the build version of the binary.
func Version() string {
	return version
}

// Execute configures logging and runs the root command.
func Execute() error {
	logger, err := configureLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error executing root command: %s", err)
		os.Exit(1)
	}

	return NewRootCmd(logger).Execute()
}

// NewRootCmd creates the root bpxd command with all subcommands attached.
func NewRootCmd(logger hclog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "bpxd <command> [args]",
		Short:        "'bpxd' runs the extension marketplace sync and submission daemon.",
		Long:         longDescription(),
		SilenceUsage: true,
		Version:      version,
	}

	// Global flags
	flags.InitFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(NewDaemonCmd(logger))

	return rootCmd
}

func longDescription() string {
	return `bpxd keeps marketplace extensions in step with their upstream repositories:
it discovers releases, validates manifests, hashes artifacts, and manages the
community submission review queue over an HTTP API.`
}

func configureLogger() (hclog.Logger, error) {
	logPath := strings.TrimSpace(os.Getenv(flags.EnvVarLogPath))

	// If BPXD_LOG_PATH is not set, don't log anywhere.
	logOutput := io.Discard

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file (%s): %w", logPath, err)
		}
		logOutput = f
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "bpxd",
		Level:  hclog.LevelFromString(getLogLevel()),
		Output: logOutput,
	})

	return logger, nil
}

func getLogLevel() string {
	lvl := strings.ToLower(os.Getenv(flags.EnvVarLogLevel))
	switch lvl {
	case "trace", "debug", "info", "warn", "error", "off":
		return lvl
	default:
		return "info"
	}
}
