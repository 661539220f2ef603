package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/thermo/internal/transport"
)

// listPorts enumerates serial ports.
// This is a variable so that it can be overridden in tests.
var listPorts = transport.ListPorts

var portsFormat string

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this host. USB adapters show their vendor and
product IDs, which helps to pick the NCP among several devices.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	portsCmd.Flags().StringVarP(&portsFormat, "format", "f", "table", "Output format (table, json)")
}

func runPorts(cmd *cobra.Command, args []string) error {
	validFormats := []string{"table", "json"}
	if !slices.Contains(validFormats, portsFormat) {
		return fmt.Errorf("invalid format '%s': must be one of %v", portsFormat, validFormats)
	}
	cmd.SilenceUsage = true

	ports, err := listPorts()
	if err != nil {
		return err
	}
	slices.SortFunc(ports, func(a, b transport.Port) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	out := cmd.OutOrStdout()
	if portsFormat == "json" {
		if ports == nil {
			ports = []transport.Port{}
		}
		return displayPortsJSON(out, ports)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	return displayPortsTable(out, ports)
}

func displayPortsTable(out io.Writer, ports []transport.Port) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB ID\tPRODUCT\tSERIAL")
	for _, p := range ports {
		id := "-"
		if p.USB {
			id = p.VID + ":" + p.PID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, id, dash(p.Product), dash(p.Serial))
	}
	return w.Flush()
}

func displayPortsJSON(out io.Writer, ports []transport.Port) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ports)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
