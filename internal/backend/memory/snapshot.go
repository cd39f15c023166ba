// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package memory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Snapshot is the YAML document describing the processes and projects the memory
// backend serves.
type Snapshot struct {
	Processes []ProcessSpec `yaml:"processes"`
	Projects  []ProjectSpec `yaml:"projects"`
}

// ProcessSpec is a simulated running instance of the engineering tool.
type ProcessSpec struct {
	ID      int    `yaml:"id"`
	Project string `yaml:"project"`
}

// ProjectSpec describes one project file.
type ProjectSpec struct {
	Path              string            `yaml:"path"`
	Version           string            `yaml:"version"`
	Multiuser         bool              `yaml:"multiuser"`
	ReferenceLanguage string            `yaml:"reference_language"`
	Languages         []string          `yaml:"languages"`
	Devices           []DeviceSpec      `yaml:"devices"`
	Groups            []DeviceGroupSpec `yaml:"groups"`
	Ungrouped         []DeviceSpec      `yaml:"ungrouped"`
}

// DeviceGroupSpec is a device folder.
type DeviceGroupSpec struct {
	Name    string            `yaml:"name"`
	Devices []DeviceSpec      `yaml:"devices"`
	Groups  []DeviceGroupSpec `yaml:"groups"`
}

// DeviceSpec is a station.
type DeviceSpec struct {
	Name  string     `yaml:"name"`
	Items []ItemSpec `yaml:"items"`
}

// ItemSpec is a device item. At most one of the software fields is set.
type ItemSpec struct {
	Name     string       `yaml:"name"`
	PLC      *PlcSpec     `yaml:"plc"`
	HMI      *NamedSpec   `yaml:"hmi"`
	Unified  *UnifiedSpec `yaml:"unified"`
	Software *NamedSpec   `yaml:"software"`
}

// NamedSpec is software tiasync does not look into.
type NamedSpec struct {
	Name string `yaml:"name"`
}

// PlcSpec is PLC software.
type PlcSpec struct {
	Name           string           `yaml:"name"`
	Blocks         []BlockSpec      `yaml:"blocks"`
	Groups         []BlockGroupSpec `yaml:"groups"`
	Types          []string         `yaml:"types"`
	TypeGroups     []FolderSpec     `yaml:"type_groups"`
	TagTables      []string         `yaml:"tag_tables"`
	TagTableGroups []FolderSpec     `yaml:"tag_table_groups"`
}

// BlockSpec is a program block.
type BlockSpec struct {
	Name         string `yaml:"name"`
	Number       int    `yaml:"number"`
	Type         string `yaml:"type"`
	Inconsistent bool   `yaml:"inconsistent"`
}

// BlockGroupSpec is a block folder.
type BlockGroupSpec struct {
	Name   string           `yaml:"name"`
	Blocks []BlockSpec      `yaml:"blocks"`
	Groups []BlockGroupSpec `yaml:"groups"`
}

// FolderSpec is a folder of named leaves (data types or tag tables).
type FolderSpec struct {
	Name   string       `yaml:"name"`
	Items  []string     `yaml:"items"`
	Groups []FolderSpec `yaml:"groups"`
}

// UnifiedSpec is unified HMI software.
type UnifiedSpec struct {
	Name           string           `yaml:"name"`
	AlarmClasses   []string         `yaml:"alarm_classes"`
	Connections    []ConnectionSpec `yaml:"connections"`
	TagTables      []string         `yaml:"tag_tables"`
	TagTableGroups []FolderSpec     `yaml:"tag_table_groups"`
	Tags           []TagSpec        `yaml:"tags"`
	Alarms         []AlarmSpec      `yaml:"alarms"`
}

// ConnectionSpec is an HMI connection.
type ConnectionSpec struct {
	Name    string `yaml:"name"`
	Partner string `yaml:"partner"`
}

// TagSpec is an HMI tag.
type TagSpec struct {
	Name       string `yaml:"name"`
	PlcTag     string `yaml:"plc_tag"`
	Connection string `yaml:"connection"`
	Table      string `yaml:"table"`
}

// AlarmSpec is a discrete alarm.
type AlarmSpec struct {
	Name           string            `yaml:"name"`
	RaisedStateTag string            `yaml:"raised_state_tag"`
	Class          string            `yaml:"class"`
	Origin         string            `yaml:"origin"`
	Text           map[string]string `yaml:"text"`
}

// Load decodes a snapshot and builds a portal from it.
func Load(r io.Reader) (*Portal, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return New(snap)
}

// LoadFile reads a snapshot file. Relative project paths are resolved against
// the snapshot's directory.
func LoadFile(path string) (*Portal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var snap Snapshot
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	base := filepath.Dir(path)
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range snap.Projects {
		snap.Projects[i].Path = abs(snap.Projects[i].Path)
	}
	for i := range snap.Processes {
		snap.Processes[i].Project = abs(snap.Processes[i].Project)
	}
	p, err := New(snap)
	if err != nil {
		return nil, err
	}
	p.source = path
	return p, nil
}
