package main

import (
	"fmt"
	"path/filepath"

	"github.com/blackplume233/remotemcp/internal/config"
	"github.com/spf13/cobra"
)

var (
	initDir   string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write starter daemon and bridge configs",
	RunE:  runInit,
}

var validateCmd = &cobra.Command{
	Use:   "validate [bridge-config]",
	Short: "Validate a bridge config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadBridgeConfig(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "validated bridge config at %s\n", args[0])
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "directory to write configs into")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd, validateCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	targets := []struct {
		kind string
		name string
	}{
		{"host", "remotemcpd.toml"},
		{"bridge", "remotemcp.toml"},
	}
	for _, target := range targets {
		path := filepath.Join(initDir, target.name)
		if err := config.WriteTemplate(path, target.kind, initForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", target.kind, path)
	}
	return nil
}
