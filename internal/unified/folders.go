// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package unified

import (
	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// EnsureTagFolder makes sure device has a tag table called name anywhere in its
// tag table tree, creating it at the root when missing. It reports whether a
// table was created.
func EnsureTagFolder(s *Session, device backend.HmiSoftware, name string) (bool, error) {
	if name == "" {
		return false, terr.New(terr.InvalidInput, "tag folder name is empty")
	}
	var created bool
	err := s.Do("Folder "+name, func() error {
		var err error
		created, err = ensureFolder(device, name)
		return err
	})
	return created, err
}

func ensureFolder(device backend.HmiSoftware, name string) (bool, error) {
	tables, err := device.TagTables().All()
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t.Name() == name {
			return false, nil
		}
	}

	queue, err := device.TagTableGroups()
	if err != nil {
		return false, err
	}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		tables, err := g.TagTables()
		if err != nil {
			return false, err
		}
		for _, t := range tables {
			if t.Name() == name {
				return false, nil
			}
		}
		sub, err := g.Groups()
		if err != nil {
			return false, err
		}
		queue = append(queue, sub...)
	}

	if _, err := device.TagTables().Create(name); err != nil {
		return false, err
	}
	return true, nil
}
