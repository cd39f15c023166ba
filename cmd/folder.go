// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/unified"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage HMI tag tables",
}

// folderEnsureCmd creates a tag table on a unified HMI device unless one with
// that name already exists anywhere in its tag table tree.
var folderEnsureCmd = &cobra.Command{
	Use:     "ensure <device> <tag table>",
	Short:   "Create an HMI tag table if it does not exist",
	Example: `  tiasync folder ensure HMI_RT_1 Motors`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)

		hmi, err := svc.HmiDevice(args[0])
		if err != nil {
			return err
		}
		s, err := svc.BeginExclusiveAccess("tiasync: tag table " + args[1])
		if err != nil {
			return err
		}
		created, err := unified.EnsureTagFolder(s, hmi, args[1])
		if err != nil {
			return err
		}
		if created {
			pterm.Success.Printf("%s: tag table %s created\n", args[0], args[1])
		} else {
			pterm.Info.Printf("%s: tag table %s already exists\n", args[0], args[1])
		}
		return svc.EndExclusiveAccess()
	},
}

func init() {
	rootCmd.AddCommand(folderCmd)
	folderCmd.AddCommand(folderEnsureCmd)
}
