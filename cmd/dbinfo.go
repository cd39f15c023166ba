// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/dsn"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/keychain"
	"tiasync/cli/internal/logging"
)

var dbinfoForget bool

// dbinfoCmd shows which tag database "sync --from-db" would use, password masked.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the configured tag database",
	Long: `The dbinfo command shows the tag database DSN that "sync --from-db" would use, with
the password masked, together with where it came from and the tables it reads.
With --forget the DSN stored in the keychain is removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, kerr := keychain.GetManager()
		if dbinfoForget {
			if kerr != nil {
				return kerr
			}
			km.ClearTagDSN()
			pterm.Success.Println("Stored tag database DSN removed")
			return nil
		}

		var store dsn.Store
		if kerr == nil {
			store = km
		}
		conn, src, err := dsn.Resolve("", store)
		if terr.IsKind(err, terr.NotFound) {
			pterm.Warning.Println("No tag database configured")
			pterm.Info.Println("Run: tiasync connect")
			return nil
		}
		if err != nil {
			return err
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Tag Database")).
			WithPadding(1).
			Println(logging.Mask(conn))
		pterm.Info.Printf("Source: %s\n", src)
		pterm.Info.Printf("Tables: %s (tags), %s (alarms)\n", cfg.Tags.Table, cfg.Tags.AlarmTable)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
	dbinfoCmd.Flags().BoolVar(&dbinfoForget, "forget", false, "remove the DSN stored in the keychain")
}
