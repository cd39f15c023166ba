// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the tiasync version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Printf("tiasync %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
