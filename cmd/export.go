// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/composition"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/export"
)

var (
	exportFolder string
	exportOutput string
)

// exportCmd exports program blocks addressed by logical path.
var exportCmd = &cobra.Command{
	Use:   "export <plc>/<group>/.../<block or group> [path...]",
	Short: "Export program blocks as XML",
	Long: `The export command writes the block a logical path names, or every block below the
group it names, to <project>/` + export.UserFolder + `/<folder>/<groups...>/<block>.xml.
Existing files are replaced. Paths that do not resolve export nothing.

With --output a single block path is written to that file instead.`,
	Example: `  tiasync export PLC_1/Main/Block1
  tiasync export PLC_1/Motors --folder Nightly
  tiasync export PLC_1/Main/Block1 --output ./Block1.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)
		if cmd.Flags().Changed("folder") {
			svc.ExportFolder = exportFolder
		}

		if exportOutput != "" {
			if len(args) != 1 {
				return cmd.Usage()
			}
			nodes, err := svc.Devices()
			if err != nil {
				return err
			}
			n := composition.Find(nodes, args[0])
			if n == nil || !n.Kind.IsBlock() {
				return terr.Newf(terr.NotFound, "no block at %s", args[0])
			}
			written, err := svc.ExportBlock(n, "", exportOutput)
			if err != nil {
				return err
			}
			pterm.Success.Println(written)
			return nil
		}

		st := startStatus("Exporting")
		svc.OnExported = func(p string) { st.Set("Exported " + filepath.Base(p)) }
		var written []string
		for _, path := range args {
			st.Set("Exporting " + path)
			res := <-svc.ExportAsync(path)
			written = append(written, res.Paths...)
			if res.Err != nil {
				st.Stop()
				return res.Err
			}
		}
		st.Stop()

		if len(written) == 0 {
			pterm.Warning.Println("Nothing matched; check the paths with 'tiasync devices --paths'")
			return nil
		}
		for _, p := range written {
			pterm.Success.Println(p)
		}
		pterm.Info.Printf("%d block(s) exported\n", len(written))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFolder, "folder", "", "subfolder of "+export.UserFolder+" (default from config, else "+export.DefaultFolder+")")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write a single block to this file")
}
