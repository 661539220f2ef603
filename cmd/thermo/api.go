package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/thermo/internal/bgapi"
	"gopkg.in/yaml.v3"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Print the BGAPI message table",
	Long: `Print the class and message IDs used for every command and event, as YAML.

The output is a valid --api file: copy it, edit the IDs that differ in your
firmware and pass it to 'thermo run --api'.`,
	Args: cobra.NoArgs,
	RunE: runAPI,
}

func init() {
	apiCmd.Flags().String("api", "", "YAML file overriding BGAPI message IDs")
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	api, err := bgapi.LoadAPI(cfg.APIFile)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	out, err := yaml.Marshal(api)
	if err != nil {
		return fmt.Errorf("encode API table: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
