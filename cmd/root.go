// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the tiasync command-line interface. It drives the
// engineering adapter through a memory snapshot or a remote agent: listing
// installations and processes, walking the device tree, exporting program blocks
// and synchronizing unified HMI tags and alarms.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tiasync/cli/internal/config"
	"tiasync/cli/internal/logging"
)

// globals holds the persistent flags shared by every subcommand.
var globals struct {
	engineering string
	api         string
	project     string
	pid         int
	backend     string
	snapshot    string
	agent       string
	insecure    bool
	verbose     bool
}

// cfg is the loaded configuration with flag overrides applied.
var cfg config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tiasync",
	Short: "Engineering project adapter and unified HMI tag synchronizer",
	Long: `tiasync talks to the engineering tool through an adapter backend. It lists
installed versions and running instances, walks a project's device tree, exports
program blocks as XML and keeps unified HMI tags and alarms in line with a PLC tag
list kept in a YAML file or a PostgreSQL tag database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.SetVerbose(globals.verbose)
		c, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, &c)
		cfg = c
		logging.Debugf("backend=%s snapshot=%s agent=%s engineering=%s api=%s",
			cfg.Backend, cfg.Snapshot, cfg.Agent.Address, cfg.EngineeringVersion, cfg.APIVersion)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// applyFlags overrides configuration values with the flags the user set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("engineering") {
		c.EngineeringVersion = globals.engineering
	}
	if flags.Changed("api") {
		c.APIVersion = globals.api
	}
	if flags.Changed("backend") {
		c.Backend = globals.backend
	}
	if flags.Changed("snapshot") {
		c.Snapshot = globals.snapshot
	}
	if flags.Changed("agent") {
		c.Agent.Address = globals.agent
	}
	if flags.Changed("agent-insecure") {
		c.Agent.Insecure = globals.insecure
	}
	if c.APIVersion == "" {
		c.APIVersion = c.EngineeringVersion
	}
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.PresentBackendError(err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globals.engineering, "engineering", "", "engineering tool version, e.g. V17.0")
	pf.StringVar(&globals.api, "api", "", "API version (defaults to --engineering)")
	pf.StringVar(&globals.project, "project", "", "project file to open instead of attaching to a running instance")
	pf.IntVar(&globals.pid, "pid", 0, "process id of the instance to attach to")
	pf.StringVar(&globals.backend, "backend", "", fmt.Sprintf("adapter backend: %s or %s", config.BackendMemory, config.BackendAgent))
	pf.StringVar(&globals.snapshot, "snapshot", "", "YAML snapshot served by the memory backend")
	pf.StringVar(&globals.agent, "agent", "", "address of the engineering agent")
	pf.BoolVar(&globals.insecure, "agent-insecure", false, "talk to the agent without TLS")
	pf.BoolVarP(&globals.verbose, "verbose", "v", false, "enable verbose debug output")
}
