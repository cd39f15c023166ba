// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/pterm/pterm"
)

// VerboseEnv enables Debugf output when set to "1".
const VerboseEnv = "TIASYNC_VERBOSE"

var verbose atomic.Bool

// SetVerbose turns debug output on or off for the whole process.
func SetVerbose(on bool) {
	verbose.Store(on)
	if on {
		pterm.EnableDebugMessages()
	} else {
		pterm.DisableDebugMessages()
	}
}

// Verbose reports whether debug output is enabled by SetVerbose or the environment.
func Verbose() bool {
	return verbose.Load() || os.Getenv(VerboseEnv) == "1"
}

// Debugf prints a masked diagnostic line when verbose output is enabled.
func Debugf(format string, args ...any) {
	if !Verbose() {
		return
	}
	pterm.Debug.WithDebugger(false).Println(Mask(fmt.Sprintf(format, args...)))
}

// PresentError formats an error for user display with masking.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}
