package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/thermo/pkg/config"
)

// loadConfig reads --config and applies the flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.BaudRate, _ = flags.GetInt("baud")
	}
	if flags.Changed("api") {
		cfg.APIFile, _ = flags.GetString("api")
	}
	if flags.Changed("color") {
		cfg.Color, _ = flags.GetString("color")
	}
	if flags.Changed("no-reset-on-exit") {
		noReset, _ := flags.GetBool("no-reset-on-exit")
		cfg.ResetOnExit = !noReset
	}
	if flags.Changed("interval") {
		cfg.Sim.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("start") {
		cfg.Sim.StartMilliCelsius, _ = flags.GetUint32("start")
	}
	if flags.Changed("step") {
		cfg.Sim.StepMilliCelsius, _ = flags.GetInt32("step")
	}
	if flags.Changed("rssi") {
		cfg.Sim.RSSI, _ = flags.GetInt8("rssi")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
