package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/thermo/internal/ncpsim"
	"github.com/srg/thermo/internal/ptyio"
	"github.com/srg/thermo/pkg/config"
)

// simCmd represents the sim command
var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a simulated NCP with a Health Thermometer in range",
	Long: `Start an emulated NCP on a pseudo-terminal and print its device path.

The simulated radio sees an unrelated peripheral and a Health Thermometer.
Once indications are enabled it sends a temperature every --interval,
starting at --start milli-degrees Celsius and adding --step each time.
Point 'thermo run --port' at the printed path to exercise the whole client
without hardware.`,
	Example: `  thermo sim
  thermo sim --interval 200ms --start 24880 --step -5`,
	Args: cobra.NoArgs,
	RunE: runSim,
}

func init() {
	simCmd.Flags().Duration("interval", 0, "Time between temperature indications (default 1s)")
	simCmd.Flags().Uint32("start", 0, "First temperature in milli-degrees Celsius (default 36550)")
	simCmd.Flags().Int32("step", 0, "Change per indication in milli-degrees Celsius (default 10)")
	simCmd.Flags().Int8("rssi", 0, "RSSI reported for the link in dBm (default -55)")
	simCmd.Flags().String("address", "", "Address of the simulated thermometer (default 00:0b:57:aa:bb:cc)")
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	address, _ := cmd.Flags().GetString("address")

	cmd.SilenceUsage = true

	p, err := ptyio.Open(logger)
	if err != nil {
		return err
	}
	defer p.Close()

	sim, err := ncpsim.New(p, simOptions(cfg, address, logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "NCP simulator ready on %s\n", p.TTYName())
	fmt.Fprintf(out, "Connect with: thermo run --port %s\n", p.TTYName())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sim.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "\nSimulator stopped")
	}
	return err
}

// simOptions maps the sim section of cfg onto the simulator. The values
// already carry their defaults, so zeros are passed through as set.
func simOptions(cfg *config.Config, address string, logger *logrus.Logger) ncpsim.Options {
	return ncpsim.Options{
		Address:           address,
		Interval:          cfg.Sim.Interval,
		StartMilliCelsius: cfg.Sim.StartMilliCelsius,
		StepMilliCelsius:  cfg.Sim.StepMilliCelsius,
		RSSI:              cfg.Sim.RSSI,
		Logger:            logger,
	}
}
