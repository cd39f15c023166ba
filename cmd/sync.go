// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tiasync/cli/internal/dsn"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/keychain"
	"tiasync/cli/internal/logging"
	"tiasync/cli/internal/portal"
	"tiasync/cli/internal/tagsource"
	"tiasync/cli/internal/unified"
)

var syncFlags struct {
	file         string
	fromDB       bool
	dsn          string
	device       string
	defaultClass string
}

// syncCmd groups the tag and alarm synchronization commands.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize unified HMI tags and alarms with a PLC tag list",
	Long: `The sync commands read desired HMI tags and discrete alarms from a YAML tag file
(--file) or from the plant tag database (--from-db) and reconcile every unified HMI
device they name. Tags are matched by their PLC tag reference: matching tags are
renamed, duplicates are deleted together with the alarms they raise, missing tags are
created. Tags whose reference is not requested stay untouched.`,
}

var syncTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Reconcile HMI tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), syncTags)
	},
}

var syncAlarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "Create or update discrete alarms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), syncAlarms)
	},
}

var syncTagCmd = &cobra.Command{
	Use:   "tag <device> <connection> <plc tag> <name>",
	Short: "Rebuild a single HMI tag",
	Long: `The tag command converges one HMI tag: every tag carrying the PLC reference loses
the alarms it raises, duplicates are deleted and the remaining or a new tag gets the
connection, reference and name given.`,
	Example: `  tiasync sync tag HMI_RT_1 PLC_1 '"Motor data".Speed' Speed`,
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openProject(cmd.Context())
		if err != nil {
			return err
		}
		defer closeService(svc)

		req := unified.TagRequest{Device: args[0], Connection: args[1], PlcTag: args[2], Name: args[3]}
		hmi, err := svc.HmiDevice(req.Device)
		if err != nil {
			return err
		}
		s, err := svc.BeginExclusiveAccess("tiasync: rebuilding tag " + req.Name)
		if err != nil {
			return err
		}
		if err := unified.SyncTag(s, hmi, req); err != nil {
			return err
		}
		pterm.Success.Printf("%s: tag %s → %s\n", req.Device, unified.NormalizePlcTag(req.PlcTag), req.Name)
		return svc.EndExclusiveAccess()
	},
}

// loadRequests reads the desired tag set from the file or the tag database.
func loadRequests(ctx context.Context) (*tagsource.Set, error) {
	switch {
	case syncFlags.file != "" && syncFlags.fromDB:
		return nil, terr.New(terr.InvalidInput, "use either --file or --from-db")
	case syncFlags.file != "":
		return tagsource.LoadFile(syncFlags.file)
	case !syncFlags.fromDB:
		return nil, terr.New(terr.InvalidInput, "name a tag source with --file or --from-db")
	}

	var store dsn.Store
	if km, err := keychain.GetManager(); err == nil {
		store = km
	} else {
		logging.Debugf("keychain unavailable: %v", err)
	}
	conn, src, err := dsn.Resolve(syncFlags.dsn, store)
	if err != nil {
		return nil, err
	}
	logging.Debugf("tag database DSN from %s: %s", src, conn)

	db, err := tagsource.Open(ctx, conn, cfg.Tags.Table, cfg.Tags.AlarmTable)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := db.CheckSchema(ctx); err != nil {
		return nil, err
	}
	return db.Load(ctx, syncFlags.device)
}

type syncFunc func(s *unified.Session, svc *portal.Service, device string, tags []unified.TagRequest, alarms []unified.AlarmRequest) error

func runSync(ctx context.Context, fn syncFunc) error {
	set, err := loadRequests(ctx)
	if err != nil {
		return err
	}
	devices := set.Devices()
	if syncFlags.device != "" {
		devices = []string{syncFlags.device}
	}
	if len(devices) == 0 {
		pterm.Warning.Println("The tag source lists no devices")
		return nil
	}

	svc, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer closeService(svc)

	s, err := svc.BeginExclusiveAccess("tiasync: synchronizing HMI tags")
	if err != nil {
		return err
	}
	for _, d := range devices {
		tags, alarms := set.ForDevice(d)
		if err := fn(s, svc, d, tags, alarms); err != nil {
			return fmt.Errorf("%s: %w", d, err)
		}
	}
	return svc.EndExclusiveAccess()
}

func syncTags(s *unified.Session, svc *portal.Service, device string, tags []unified.TagRequest, _ []unified.AlarmRequest) error {
	if len(tags) == 0 {
		return nil
	}
	hmi, err := svc.HmiDevice(device)
	if err != nil {
		return err
	}
	st := startStatus("Synchronizing tags of " + device)
	report, err := unified.SyncTags(s, hmi, tags)
	st.Stop()
	if report != nil {
		printReport(device, report)
	}
	return err
}

func syncAlarms(s *unified.Session, svc *portal.Service, device string, _ []unified.TagRequest, alarms []unified.AlarmRequest) error {
	if len(alarms) == 0 {
		return nil
	}
	hmi, err := svc.HmiDevice(device)
	if err != nil {
		return err
	}
	st := startStatus("Synchronizing alarms of " + device)
	defer st.Stop()
	for i, req := range alarms {
		st.Set(fmt.Sprintf("Alarm %s (%d/%d)", req.TagName, i+1, len(alarms)))
		class, err := unified.ResolveAlarmClass(hmi, req.ClassName, req.TagName, syncFlags.defaultClass)
		if err != nil {
			return err
		}
		req.ClassName = class
		if err := unified.SyncAlarm(s, hmi, req); err != nil {
			return err
		}
	}
	st.Stop()
	pterm.Success.Printf("%s: %d alarm(s) synchronized\n", device, len(alarms))
	return nil
}

func printReport(device string, r *unified.Report) {
	if r.Changes() == 0 {
		pterm.Success.Printf("%s: %d tag(s) already in sync\n", device, r.Unchanged)
		return
	}
	var items []pterm.BulletListItem
	for _, n := range r.Created {
		items = append(items, pterm.BulletListItem{Text: pterm.Green("+ ") + n})
	}
	for _, n := range r.Renamed {
		items = append(items, pterm.BulletListItem{Text: pterm.Yellow("~ ") + n})
	}
	for _, n := range r.Deleted {
		items = append(items, pterm.BulletListItem{Text: pterm.Red("- ") + n})
	}
	for _, n := range r.AlarmsDeleted {
		items = append(items, pterm.BulletListItem{Level: 1, Text: pterm.Gray("alarm " + n + " removed")})
	}
	pterm.DefaultSection.Println(device)
	_ = pterm.DefaultBulletList.WithItems(items).Render()
	pterm.Info.Printf("%d created, %d renamed, %d deleted, %d unchanged\n",
		len(r.Created), len(r.Renamed), len(r.Deleted), r.Unchanged)
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncTagsCmd, syncAlarmsCmd, syncTagCmd)

	pf := syncCmd.PersistentFlags()
	pf.StringVarP(&syncFlags.file, "file", "f", "", "YAML tag file")
	pf.BoolVar(&syncFlags.fromDB, "from-db", false, "read the plant tag database")
	pf.StringVar(&syncFlags.dsn, "dsn", "", "tag database DSN (default $"+dsn.EnvVar+" or the keychain)")
	pf.StringVar(&syncFlags.device, "device", "", "only synchronize this HMI device")
	syncAlarmsCmd.Flags().StringVar(&syncFlags.defaultClass, "default-class", "Alarm", "alarm class used when neither the requested class nor the tag name is one")
}
