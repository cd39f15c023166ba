// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"tiasync/cli/internal/backend/agent"
	"tiasync/cli/internal/backend/memory"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/logging"
)

var agentFlags struct {
	listen string
	cert   string
	key    string
	noAuth bool
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the engineering agent",
}

// agentServeCmd exposes a backend over gRPC so that "--backend agent" clients
// on other machines can drive it.
var agentServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a backend to remote tiasync clients",
	Long: `The serve command exposes the backend loaded from --snapshot on --listen. Every call
must carry the bearer token from $` + AgentTokenEnv + ` or the keychain ("tiasync token set")
unless --no-auth is given. With --cert and --key the listener uses TLS.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Snapshot == "" {
			return terr.New(terr.InvalidInput, "agent serve needs --snapshot")
		}
		be, err := memory.LoadFile(cfg.Snapshot)
		if err != nil {
			return terr.Wrap(terr.InvalidInput, "load snapshot", err)
		}
		defer be.Close()

		var opts []grpc.ServerOption
		if !agentFlags.noAuth {
			token := agentToken()
			if token == "" {
				return terr.New(terr.InvalidInput, "no agent token; run 'tiasync token set' or pass --no-auth")
			}
			opts = append(opts, grpc.UnaryInterceptor(agent.TokenAuth(token)))
		}
		if agentFlags.cert != "" || agentFlags.key != "" {
			creds, err := credentials.NewServerTLSFromFile(agentFlags.cert, agentFlags.key)
			if err != nil {
				return terr.Wrap(terr.InvalidInput, "load TLS key pair", err)
			}
			opts = append(opts, grpc.Creds(creds))
		}

		addr := agentFlags.listen
		if addr == "" {
			addr = cfg.Agent.Address
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return terr.Wrap(terr.BackendFailed, "listen on "+addr, err)
		}

		srv := agent.NewServer(be)
		gs := grpc.NewServer(append(opts, srv.ServerOption())...)
		srv.Register(gs)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			logging.Debugf("agent shutting down")
			gs.GracefulStop()
		}()

		pterm.Success.Printf("Agent serving %s on %s\n", cfg.Snapshot, lis.Addr())
		if err := gs.Serve(lis); err != nil {
			return terr.Wrap(terr.BackendFailed, "serve", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentServeCmd)
	f := agentServeCmd.Flags()
	f.StringVar(&agentFlags.listen, "listen", "", "listen address (default: agent address from config, "+agent.DefaultAddress+")")
	f.StringVar(&agentFlags.cert, "cert", "", "TLS certificate file")
	f.StringVar(&agentFlags.key, "key", "", "TLS key file")
	f.BoolVar(&agentFlags.noAuth, "no-auth", false, "accept calls without a token")
}
