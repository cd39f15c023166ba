// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !windows

package resolver

import terr "tiasync/cli/internal/errors"

type systemRegistry struct{}

// System returns a registry that reports every lookup as unsupported; the
// engineering tool only registers itself on Windows.
func System() Registry { return systemRegistry{} }

func (systemRegistry) SubKeys(path string) ([]string, error) {
	return nil, terr.New(terr.Unsupported, "registry lookups require Windows")
}

func (systemRegistry) Value(path, name string) (string, error) {
	return "", terr.New(terr.Unsupported, "registry lookups require Windows")
}
