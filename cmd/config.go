// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save the configuration",
	Long: `Without a subcommand the effective configuration is printed: the config file merged
with defaults and the global flags of this invocation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data := [][]string{
			{"Setting", "Value"},
			{"backend", cfg.Backend},
			{"snapshot", cfg.Snapshot},
			{"agent.address", cfg.Agent.Address},
			{"agent.insecure", strconv.FormatBool(cfg.Agent.Insecure)},
			{"engineering_version", cfg.EngineeringVersion},
			{"api_version", cfg.APIVersion},
			{"export_folder", cfg.ExportFolder},
			{"tags.table", cfg.Tags.Table},
			{"tags.alarm_table", cfg.Tags.AlarmTable},
			{"log_level", cfg.LogLevel},
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

// configSaveCmd persists the effective configuration, so flags given once become
// the defaults of later runs.
var configSaveCmd = &cobra.Command{
	Use:     "save",
	Short:   "Save the effective configuration",
	Example: `  tiasync config save --backend agent --agent plant-eng01:50551`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(cfg); err != nil {
			return err
		}
		pterm.Success.Println("Configuration saved")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSaveCmd)
}
