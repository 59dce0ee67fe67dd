package main

import (
	"encoding/json"
	"fmt"

	"github.com/blackplume233/remotemcp/internal/host"
	"github.com/spf13/cobra"
)

var (
	controlAddr    string
	controlMessage string
)

var controlCmd = &cobra.Command{
	Use:       "control <start|stop|status>",
	Short:     "Send an operator action to a running daemon's host control port",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "stop", "status"},
	RunE:      runControl,
}

func init() {
	controlCmd.Flags().StringVar(&controlAddr, "control", defaultDaemonConfig().ControlAddr, "host control address")
	controlCmd.Flags().StringVarP(&controlMessage, "message", "m", "", "message attached to start or stop")
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	client := host.NewControlClient(controlAddr)
	defer client.Close()

	var data json.RawMessage
	if err := client.Do(args[0], controlMessage, &data); err != nil {
		return fmt.Errorf("control %s: %w", args[0], err)
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
