// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package resolver

import (
	"sort"
	"strings"

	terr "tiasync/cli/internal/errors"
)

// MemoryRegistry is a Registry held in memory. Key paths compare case-insensitively
// like the Windows registry. The zero value is empty and ready to use.
type MemoryRegistry struct {
	keys   map[string]string // folded path -> display path
	values map[string]map[string]string
}

// AddKey creates path and all of its parents.
func (m *MemoryRegistry) AddKey(path string) {
	if m.keys == nil {
		m.keys = make(map[string]string)
		m.values = make(map[string]map[string]string)
	}
	parts := strings.Split(strings.Trim(path, `\`), `\`)
	for i := range parts {
		p := strings.Join(parts[:i+1], `\`)
		if _, ok := m.keys[fold(p)]; !ok {
			m.keys[fold(p)] = p
		}
	}
}

// Set stores a string value, creating the key when needed.
func (m *MemoryRegistry) Set(path, name, value string) {
	m.AddKey(path)
	k := fold(strings.Trim(path, `\`))
	if m.values[k] == nil {
		m.values[k] = make(map[string]string)
	}
	m.values[k][name] = value
}

func (m *MemoryRegistry) SubKeys(path string) ([]string, error) {
	parent := fold(strings.Trim(path, `\`))
	if _, ok := m.keys[parent]; !ok {
		return nil, terr.Newf(terr.NotFound, "registry key %s not found", path)
	}
	var out []string
	for k, display := range m.keys {
		rest, ok := strings.CutPrefix(k, parent+`\`)
		if !ok || strings.Contains(rest, `\`) {
			continue
		}
		out = append(out, display[strings.LastIndex(display, `\`)+1:])
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRegistry) Value(path, name string) (string, error) {
	v, ok := m.values[fold(strings.Trim(path, `\`))][name]
	if !ok {
		return "", terr.Newf(terr.NotFound, "registry value %s\\%s not found", path, name)
	}
	return v, nil
}

func fold(p string) string { return strings.ToLower(p) }
