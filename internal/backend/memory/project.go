// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package memory

import (
	"path/filepath"
	"strings"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

type project struct {
	st        *state
	path      string
	version   string
	multiuser bool
	reference string
	languages []string
	devices   []*device
	groups    []*deviceGroup
	ungrouped []*device
}

func buildProject(st *state, ps ProjectSpec) (*project, error) {
	pr := &project{
		st:        st,
		path:      ps.Path,
		version:   ps.Version,
		multiuser: ps.Multiuser,
		reference: ps.ReferenceLanguage,
		languages: append([]string(nil), ps.Languages...),
	}
	if pr.reference == "" && len(pr.languages) > 0 {
		pr.reference = pr.languages[0]
	}
	var err error
	if pr.devices, err = buildDevices(pr, ps.Devices); err != nil {
		return nil, err
	}
	if pr.ungrouped, err = buildDevices(pr, ps.Ungrouped); err != nil {
		return nil, err
	}
	for _, gs := range ps.Groups {
		g, err := buildDeviceGroup(pr, gs)
		if err != nil {
			return nil, err
		}
		pr.groups = append(pr.groups, g)
	}
	return pr, nil
}

func (p *project) Name() string {
	base := filepath.Base(p.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (p *project) Path() string              { return p.path }
func (p *project) Multiuser() bool           { return p.multiuser }
func (p *project) ReferenceLanguage() string { return p.reference }

func (p *project) ActiveLanguages() []string {
	return append([]string(nil), p.languages...)
}

func (p *project) Devices() ([]backend.Device, error) {
	return devicesOf(p.devices), nil
}

func (p *project) UngroupedDevices() ([]backend.Device, error) {
	return devicesOf(p.ungrouped), nil
}

func (p *project) DeviceGroups() ([]backend.DeviceGroup, error) {
	out := make([]backend.DeviceGroup, len(p.groups))
	for i, g := range p.groups {
		out[i] = g
	}
	return out, nil
}

func devicesOf(ds []*device) []backend.Device {
	out := make([]backend.Device, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}

type deviceGroup struct {
	name    string
	devices []*device
	groups  []*deviceGroup
}

func buildDeviceGroup(pr *project, gs DeviceGroupSpec) (*deviceGroup, error) {
	g := &deviceGroup{name: gs.Name}
	var err error
	if g.devices, err = buildDevices(pr, gs.Devices); err != nil {
		return nil, err
	}
	for _, sub := range gs.Groups {
		sg, err := buildDeviceGroup(pr, sub)
		if err != nil {
			return nil, err
		}
		g.groups = append(g.groups, sg)
	}
	return g, nil
}

func (g *deviceGroup) Name() string { return g.name }

func (g *deviceGroup) Devices() ([]backend.Device, error) {
	return devicesOf(g.devices), nil
}

func (g *deviceGroup) Groups() ([]backend.DeviceGroup, error) {
	out := make([]backend.DeviceGroup, len(g.groups))
	for i, sg := range g.groups {
		out[i] = sg
	}
	return out, nil
}

type device struct {
	name  string
	items []*deviceItem
}

func buildDevices(pr *project, specs []DeviceSpec) ([]*device, error) {
	var out []*device
	for _, ds := range specs {
		d := &device{name: ds.Name}
		for _, is := range ds.Items {
			it, err := buildItem(pr, is)
			if err != nil {
				return nil, terr.Wrap(terr.InvalidInput, "device "+ds.Name, err)
			}
			d.items = append(d.items, it)
		}
		out = append(out, d)
	}
	return out, nil
}

func (d *device) Name() string { return d.name }

func (d *device) Items() ([]backend.DeviceItem, error) {
	out := make([]backend.DeviceItem, len(d.items))
	for i, it := range d.items {
		out[i] = it
	}
	return out, nil
}

type deviceItem struct {
	name     string
	software backend.Software
}

func buildItem(pr *project, is ItemSpec) (*deviceItem, error) {
	it := &deviceItem{name: is.Name}
	set := 0
	if is.PLC != nil {
		set++
		it.software = buildPlc(pr, *is.PLC)
	}
	if is.HMI != nil {
		set++
		it.software = &hmiTarget{name: is.HMI.Name}
	}
	if is.Unified != nil {
		set++
		sw, err := buildUnified(pr, *is.Unified)
		if err != nil {
			return nil, err
		}
		it.software = sw
	}
	if is.Software != nil {
		set++
		it.software = &opaqueSoftware{name: is.Software.Name}
	}
	if set > 1 {
		return nil, terr.Newf(terr.InvalidInput, "item %s declares %d software containers", is.Name, set)
	}
	return it, nil
}

func (i *deviceItem) Name() string { return i.name }

func (i *deviceItem) Software() (backend.Software, error) {
	return i.software, nil
}

type hmiTarget struct{ name string }

func (h *hmiTarget) Name() string { return h.name }
func (h *hmiTarget) ClassicHMI()  {}

type opaqueSoftware struct{ name string }

func (o *opaqueSoftware) Name() string { return o.name }
