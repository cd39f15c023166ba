// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/logging"
	"tiasync/cli/internal/resolver"
)

// versionsCmd lists installed engineering versions with their API versions.
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List installed engineering versions and their API versions",
	Long: `The versions command reads the Openness registration of the local machine (or the
versions announced by the memory backend's snapshot) and lists every engineering
version from ` + resolver.MinimumVersion + ` on with the API versions it provides.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := resolver.System()
		if cfg.Snapshot != "" {
			be, snapReg, err := openBackend()
			if err != nil {
				return err
			}
			defer be.Close()
			reg = snapReg
		}

		res := resolver.New(reg)
		versions := res.EngineeringVersions()
		if len(versions) == 0 {
			pterm.Warning.Printf("No engineering tool %s or newer is installed\n", resolver.MinimumVersion)
			return nil
		}

		data := pterm.TableData{{"Engineering", "API versions", "Library"}}
		for _, v := range versions {
			apis := res.APIVersions(v)
			var lib string
			labels := make([]string, len(apis))
			for i, a := range apis {
				labels[i] = "V" + a
			}
			if len(apis) > 0 {
				lib, _ = res.LibraryPath(v, apis[len(apis)-1])
			}
			data = append(data, []string{"V" + v, strings.Join(labels, ", "), lib})
		}
		logging.Debugf("%d libraries registered", len(res.Libraries()))
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}
