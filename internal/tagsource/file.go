// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tagsource loads the desired HMI tags and alarms handed to the unified
// synchronizer. They come either from a YAML tag file kept next to the project or
// from the plant's PostgreSQL tag database.
package tagsource

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/unified"
)

// Set is a loaded batch of desired tags and alarms.
type Set struct {
	Tags   []unified.TagRequest
	Alarms []unified.AlarmRequest
}

type fileTag struct {
	Device     string `yaml:"device"`
	Connection string `yaml:"connection"`
	PlcTag     string `yaml:"plc_tag"`
	Name       string `yaml:"name"`
	Folder     string `yaml:"folder"`
}

type fileAlarm struct {
	Device string            `yaml:"device"`
	Class  string            `yaml:"class"`
	Tag    string            `yaml:"tag"`
	Origin string            `yaml:"origin"`
	Text   map[string]string `yaml:"text"`
}

type document struct {
	// Device applies to entries that do not name one.
	Device string      `yaml:"device"`
	Tags   []fileTag   `yaml:"tags"`
	Alarms []fileAlarm `yaml:"alarms"`
}

// Decode reads a YAML tag file. Unknown keys are rejected.
func Decode(r io.Reader) (*Set, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, terr.Wrap(terr.InvalidInput, "decode tag file", err)
	}

	set := &Set{}
	for i, t := range doc.Tags {
		if t.Device == "" {
			t.Device = doc.Device
		}
		if t.Device == "" || t.PlcTag == "" || t.Name == "" {
			return nil, terr.Newf(terr.InvalidInput, "tag entry %d needs device, plc_tag and name", i+1)
		}
		set.Tags = append(set.Tags, unified.TagRequest(t))
	}
	for i, a := range doc.Alarms {
		if a.Device == "" {
			a.Device = doc.Device
		}
		if a.Device == "" || a.Tag == "" {
			return nil, terr.Newf(terr.InvalidInput, "alarm entry %d needs device and tag", i+1)
		}
		set.Alarms = append(set.Alarms, unified.AlarmRequest{
			Device:       a.Device,
			ClassName:    a.Class,
			TagName:      a.Tag,
			Origin:       a.Origin,
			Descriptions: a.Text,
		})
	}
	return set, nil
}

// LoadFile reads a tag file from disk.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tag file: %w", err)
	}
	defer f.Close()
	set, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Devices lists the device names the set mentions, sorted.
func (s *Set) Devices() []string {
	seen := make(map[string]bool)
	for _, t := range s.Tags {
		seen[t.Device] = true
	}
	for _, a := range s.Alarms {
		seen[a.Device] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ForDevice returns the requests addressed to device, in input order.
func (s *Set) ForDevice(device string) ([]unified.TagRequest, []unified.AlarmRequest) {
	var tags []unified.TagRequest
	for _, t := range s.Tags {
		if t.Device == device {
			tags = append(tags, t)
		}
	}
	var alarms []unified.AlarmRequest
	for _, a := range s.Alarms {
		if a.Device == device {
			alarms = append(alarms, a)
		}
	}
	return tags, alarms
}
