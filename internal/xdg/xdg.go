// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves the XDG Base Directory locations tiasync keeps its files in.
// Unset XDG variables fall back to the conventional locations under the home
// directory. Directories are created private (0700) on first use.
package xdg

import (
	"os"
	"path/filepath"
)

const appDir = "tiasync"

// ConfigDir returns $XDG_CONFIG_HOME/tiasync, or ~/.config/tiasync.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/tiasync, or ~/.local/state/tiasync. It holds
// the file keyring backend used when no OS keychain is reachable.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, appDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
