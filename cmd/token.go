// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/keychain"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the engineering agent token",
	Long: `The agent authenticates every call with a shared bearer token. The token commands
keep it in the OS keychain; $` + AgentTokenEnv + ` takes precedence when set.`,
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the agent token in the keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			v, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Agent token")
			if err != nil {
				return err
			}
			token = v
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return terr.New(terr.InvalidInput, "the token is empty")
		}

		km, err := keychain.GetManager()
		if err != nil {
			pterm.Error.Println("Secure storage is not available on this system")
			return err
		}
		if err := km.SaveAgentToken(token); err != nil {
			return err
		}
		pterm.Success.Println("Agent token saved")
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored agent token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		km.ClearAgentToken()
		pterm.Success.Println("Agent token removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd)
}
