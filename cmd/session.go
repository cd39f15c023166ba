// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/backend/agent"
	"tiasync/cli/internal/backend/memory"
	"tiasync/cli/internal/config"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/keychain"
	"tiasync/cli/internal/logging"
	"tiasync/cli/internal/portal"
	"tiasync/cli/internal/resolver"
)

// AgentTokenEnv overrides the agent token stored in the keychain.
const AgentTokenEnv = "TIASYNC_AGENT_TOKEN"

// openBackend builds the adapter backend selected by the configuration. The
// memory backend also supplies a registry announcing its snapshot's versions.
func openBackend() (backend.Portal, resolver.Registry, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		if cfg.Snapshot == "" {
			return nil, nil, terr.New(terr.InvalidInput, "the memory backend needs --snapshot or a snapshot in the config file")
		}
		p, err := memory.LoadFile(cfg.Snapshot)
		if err != nil {
			return nil, nil, terr.Wrap(terr.InvalidInput, "load snapshot", err)
		}
		logging.Debugf("memory backend loaded from %s", cfg.Snapshot)
		return p, p.Registry(), nil
	case config.BackendAgent:
		c, err := agent.Dial(cfg.Agent.Address, agentToken(), cfg.Agent.Insecure)
		if err != nil {
			return nil, nil, err
		}
		logging.Debugf("agent backend at %s (insecure=%t)", cfg.Agent.Address, cfg.Agent.Insecure)
		return c, resolver.System(), nil
	}
	return nil, nil, terr.Newf(terr.InvalidInput, "unknown backend %q", cfg.Backend)
}

// agentToken returns $TIASYNC_AGENT_TOKEN or the token stored in the keychain.
func agentToken() string {
	if v := strings.TrimSpace(os.Getenv(AgentTokenEnv)); v != "" {
		return v
	}
	km, err := keychain.GetManager()
	if err != nil {
		logging.Debugf("keychain unavailable: %v", err)
		return ""
	}
	token, err := km.LoadAgentToken()
	if err != nil {
		logging.Debugf("no agent token: %v", err)
		return ""
	}
	return token
}

// newService opens the backend and wraps it in an adapter service. Versions from
// the configuration are initialized when set.
func newService() (*portal.Service, error) {
	be, reg, err := openBackend()
	if err != nil {
		return nil, err
	}
	svc := portal.NewService(be, resolver.New(reg))
	svc.ExportFolder = cfg.ExportFolder
	if cfg.EngineeringVersion != "" {
		if err := svc.Initialize(cfg.EngineeringVersion, cfg.APIVersion); err != nil {
			_ = be.Close()
			return nil, err
		}
	}
	return svc, nil
}

// openProject returns a service holding a project session: the file named by
// --project, the instance named by --pid, or the first instance with a project.
func openProject(ctx context.Context) (*portal.Service, error) {
	svc, err := newService()
	if err != nil {
		return nil, err
	}
	svc.OnProjectOpened = func(ps portal.ProjectSession) {
		logging.Debugf("project %s (multiuser=%t, languages=%v)", ps.Project.Name(), ps.Multiuser, ps.Languages)
	}
	if err := adoptProject(ctx, svc); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func adoptProject(ctx context.Context, svc *portal.Service) error {
	if globals.project != "" {
		if svc.EngineeringVersion() == "" {
			return terr.New(terr.InvalidInput, "opening a project file needs --engineering")
		}
		ok, err := svc.OpenProject(ctx, globals.project)
		if err != nil {
			return err
		}
		if !ok {
			return terr.Newf(terr.ProjectOpen, "could not open %s", globals.project)
		}
		return nil
	}

	procs, err := svc.Processes(ctx)
	if err != nil {
		return err
	}
	for _, p := range procs {
		if globals.pid != 0 && p.ID != globals.pid {
			continue
		}
		if globals.pid == 0 && p.ProjectPath == "" {
			continue
		}
		logging.Debugf("attaching to process %d", p.ID)
		return svc.Connect(ctx, p)
	}
	if globals.pid != 0 {
		return terr.Newf(terr.NotFound, "no engineering process with id %d", globals.pid)
	}
	return terr.New(terr.NoProject, "no running engineering instance has a project open")
}

// closeService releases svc and reports a failure without masking the command's
// own result.
func closeService(svc *portal.Service) {
	if err := svc.Close(); err != nil {
		pterm.Warning.Println(logging.PresentError("close", err))
	}
}
