// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the resetgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resetgate",
		Short: "resetgate - self-service directory password reset",
		Long: `resetgate lets directory users reset their own password through a
short-lived, single-use token delivered over an out-of-band channel.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckConfigCmd())

	return cmd
}

// NewCheckConfigCmd creates the check-config subcommand, which loads
// and validates the configuration without starting anything.
func NewCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(nil); err != nil {
				return err
			}
			cmd.Println("configuration ok")
			return nil
		},
	}
}
