// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	terr "tiasync/cli/internal/errors"
)

type advice struct {
	title string
	lines []string
	next  string
}

var adviceByKind = map[terr.Kind]advice{
	terr.NotInstalled: {
		title: "Engineering Tool Not Installed",
		lines: []string{
			"No supported engineering tool (V15.0 or newer) is registered on this machine.",
			"The Openness keys live under HKLM\\SOFTWARE\\Siemens\\Automation\\Openness.",
		},
		next: "Install the engineering tool with the Openness option, or use --backend agent",
	},
	terr.NotFound: {
		title: "Not Found",
		lines: []string{"The requested version, library or object does not exist."},
		next:  "Run 'tiasync versions' to see what is installed",
	},
	terr.Ambiguous: {
		title: "Ambiguous Library",
		lines: []string{"Several Openness libraries match the requested versions."},
		next:  "Pass a more specific --api version",
	},
	terr.LookupFailed: {
		title: "Lookup Failed",
		lines: []string{
			"A connection, alarm class or text slot named in the request does not exist on the device.",
			"Nothing was changed by the failed step.",
		},
		next: "Check the HMI connections and alarm classes, then run the sync again",
	},
	terr.ProjectOpen: {
		title: "Project Already Open",
		lines: []string{"This session already works on a project."},
		next:  "Close the current project first",
	},
	terr.NoProject: {
		title: "No Project",
		lines: []string{"The command needs an open project."},
		next:  "Pass --project <file> or attach to a running instance with --pid",
	},
	terr.TransactionFailed: {
		title: "Change Rolled Back",
		lines: []string{"A change scope failed and the engineering tool rolled it back.", "Earlier steps stay committed."},
		next:  "Fix the cause below and run the command again; finished steps are skipped",
	},
	terr.BackendFailed: {
		title: "Engineering Backend Error",
		lines: []string{"The engineering backend rejected the call."},
		next:  "Run with --verbose for details",
	},
	terr.Unsupported: {
		title: "Unsupported",
		lines: []string{"This platform or backend cannot serve the request."},
		next:  "Use --backend agent to reach a Windows engineering station",
	},
	terr.InvalidInput: {
		title: "Invalid Input",
		lines: []string{"The request could not be understood."},
		next:  "Check the arguments and the tag file",
	},
}

// transportAdvice covers errors from the agent connection itself.
func transportAdvice(err error) (advice, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return advice{}, false
	}
	switch st.Code() {
	case codes.Unavailable:
		return advice{
			title: "Agent Unreachable",
			lines: []string{"The engineering agent did not answer.", "It may not be running, or a firewall blocks the port."},
			next:  "Start it with 'tiasync agent serve' on the engineering station",
		}, true
	case codes.Unauthenticated, codes.PermissionDenied:
		return advice{
			title: "Agent Rejected Token",
			lines: []string{"The engineering agent did not accept the bearer token."},
			next:  "Store the agent's token with 'tiasync token set'",
		}, true
	case codes.DeadlineExceeded:
		return advice{
			title: "Agent Timed Out",
			lines: []string{"The engineering agent took too long to respond."},
			next:  "Retry; large projects can take a while to open",
		}, true
	}
	return advice{}, false
}

// FormatBackendError renders err with a title and a hint chosen by its kind.
func FormatBackendError(err error) string {
	if err == nil {
		return ""
	}
	a, ok := transportAdvice(err)
	if !ok {
		a, ok = adviceByKind[terr.KindOf(err)]
	}
	if !ok {
		a = advice{title: "Error", next: "Run with --verbose for details"}
	}

	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(a.title))
	b.WriteString("\n\n")
	for _, l := range a.lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(a.lines) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ " + a.next))
	b.WriteString("\n\n")
	b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Details: " + Mask(err.Error())))
	return b.String()
}

// PresentBackendError prints FormatBackendError(err).
func PresentBackendError(err error) {
	fmt.Println()
	fmt.Println(FormatBackendError(err))
	fmt.Println()
}
