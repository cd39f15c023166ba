// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// psCmd lists running engineering instances.
var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running engineering instances and their projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService()
		if err != nil {
			return err
		}
		defer closeService(svc)

		procs, err := svc.Processes(cmd.Context())
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			pterm.Info.Println("No engineering instance is running")
			return nil
		}
		data := pterm.TableData{{"PID", "Project"}}
		for _, p := range procs {
			project := p.ProjectPath
			if project == "" {
				project = pterm.Gray("(no project)")
			}
			data = append(data, []string{strconv.Itoa(p.ID), project})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
}
