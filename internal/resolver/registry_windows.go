// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build windows

package resolver

import (
	"errors"

	"golang.org/x/sys/windows/registry"

	terr "tiasync/cli/internal/errors"
)

// views are probed in order; the first one holding the key wins.
var views = []uint32{registry.WOW64_64KEY, 0, registry.WOW64_32KEY}

type systemRegistry struct{}

// System returns the HKLM registry of this machine.
func System() Registry { return systemRegistry{} }

func (systemRegistry) open(path string) (registry.Key, error) {
	for _, view := range views {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.READ|view)
		if err == nil {
			return k, nil
		}
		if !errors.Is(err, registry.ErrNotExist) {
			return 0, terr.Wrap(terr.BackendFailed, "open registry key "+path, err)
		}
	}
	return 0, terr.Newf(terr.NotFound, "registry key %s not found", path)
}

func (r systemRegistry) SubKeys(path string) ([]string, error) {
	k, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer k.Close()
	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "list registry key "+path, err)
	}
	return names, nil
}

func (r systemRegistry) Value(path, name string) (string, error) {
	k, err := r.open(path)
	if err != nil {
		return "", err
	}
	defer k.Close()
	v, _, err := k.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", terr.Newf(terr.NotFound, "registry value %s\\%s not found", path, name)
	}
	if err != nil {
		return "", terr.Wrap(terr.BackendFailed, "read registry value "+name, err)
	}
	return v, nil
}
