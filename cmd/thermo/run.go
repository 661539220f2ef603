package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/thermo/internal/bgapi"
	"github.com/srg/thermo/internal/ncp"
	"github.com/srg/thermo/internal/thermo"
	"github.com/srg/thermo/internal/transport"
)

// openPort opens the link to the NCP.
// This is a variable so that it can be overridden in tests.
var openPort = func(port string, baud int) (io.ReadWriteCloser, error) {
	return transport.OpenSerial(port, baud)
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a Health Thermometer and print its readings",
	Long: `Reset the NCP, scan for a peripheral advertising the Health Thermometer
service (0x1809), connect to the first one found, enable indications on its
Temperature Measurement characteristic (0x2A1C) and print each reading
followed by the current RSSI.

Runs until interrupted with Ctrl+C. The NCP is reset again on exit unless
--no-reset-on-exit is given.`,
	Example: `  thermo run --port /dev/ttyACM0
  thermo run -p /dev/ttyUSB0 --baud 921600 --log-level debug
  thermo run -c thermo.yaml`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("port", "p", "", "Serial port of the NCP")
	runCmd.Flags().IntP("baud", "b", transport.DefaultBaudRate, "Baud rate")
	runCmd.Flags().String("api", "", "YAML file overriding BGAPI message IDs (see 'thermo api')")
	runCmd.Flags().String("color", "auto", "Colour output (auto, always, never)")
	runCmd.Flags().Bool("no-reset-on-exit", false, "Leave the NCP running on exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	if cfg.Port == "" {
		return ErrPortRequired
	}
	api, err := bgapi.LoadAPI(cfg.APIFile)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	link, err := openPort(cfg.Port, cfg.BaudRate)
	if err != nil {
		return err
	}
	node := bgapi.NewNode(link, api, bgapi.NodeOptions{EventBuffer: cfg.EventBuffer, Logger: logger})
	defer node.Close()

	out := cmd.OutOrStdout()
	client := thermo.NewClient(node, thermo.Options{
		Scan:          cfg.ScanParams(),
		ConnectionPhy: cfg.ConnectionPhy,
		Logger:        logger,
		Reporter:      thermo.NewConsoleReporter(out, cfg.ColorEnabled(out)),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("port", cfg.Port).WithField("baud", cfg.BaudRate).Info("Resetting NCP")
	if err := node.Reset(ncp.ResetNormal); err != nil {
		return fmt.Errorf("reset NCP: %w", err)
	}

	runErr := client.Run(ctx, node)
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nInterrupted, shutting down...")
	}

	if cfg.ResetOnExit {
		if err := node.Reset(ncp.ResetNormal); err != nil {
			logger.WithError(err).Debug("Reset on exit failed")
		}
	}
	return runErr
}
