package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/bpx-store/bpxd/internal/config"
	"github.com/bpx-store/bpxd/internal/daemon"
	"github.com/bpx-store/bpxd/internal/flags"
)

// DaemonCmd should be used to represent the 'daemon' command.
type DaemonCmd struct {
	logger hclog.Logger
	Addr   string
}

// NewDaemonCmd creates a newly configured (Cobra) command.
func NewDaemonCmd(logger hclog.Logger) *cobra.Command {
	c := &DaemonCmd{logger: logger}

	cobraCommand := &cobra.Command{
		Use:   "daemon [--addr]",
		Short: "Launches a `bpxd` daemon instance",
		Long:  "Launches a `bpxd` daemon instance, which serves the sync and submission HTTP API",
		RunE:  c.run,
	}

	cobraCommand.Flags().StringVar(
		&c.Addr,
		"addr",
		"",
		"Address for the daemon to bind (overrides the config file)",
	)

	return cobraCommand
}

// run is configured (via NewDaemonCmd) to be called by the Cobra framework when the command is executed.
// It may return an error (or nil, when there is no error).
func (c *DaemonCmd) run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}

	if addr := strings.TrimSpace(c.Addr); addr != "" {
		cfg.API.Addr = addr
	}

	// Create the signal handling context for the application.
	daemonCtx, daemonCtxCancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer daemonCtxCancel()

	d, err := daemon.NewDaemon(daemonCtx, c.logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to create bpxd daemon instance: %w", err)
	}

	runErr := make(chan error, 1)
	go func() {
		if err := d.StartAndManage(daemonCtx); err != nil && !errors.Is(err, context.Canceled) {
			runErr <- err
		}
		close(runErr)
	}()

	select {
	case <-daemonCtx.Done():
		c.logger.Info("Shutting down daemon")
		err := <-runErr // Wait for cleanup and deferred logging.
		return err      // Graceful Ctrl+C / SIGTERM.
	case err := <-runErr:
		c.logger.Error("daemon exited with error", "error", err)
		return err // Propagate daemon failure.
	}
}
