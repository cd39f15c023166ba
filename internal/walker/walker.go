// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package walker turns an opened project into a composition tree.
//
// Device containers are visited in a fixed order: top-level devices, then device
// groups breadth-first, then the ungrouped bucket. Inside PLC software the block,
// type and tag-table folders are also walked breadth-first through a FIFO queue so
// the discovery order matches the engineering tool's own listing.
package walker

import (
	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/composition"
	terr "tiasync/cli/internal/errors"
)

// Walk enumerates the project's devices. It also returns every PLC software it
// met, in discovery order, for path-based lookups by the exporter.
func Walk(p backend.Project) ([]*composition.Node, []backend.PlcSoftware, error) {
	w := &walk{}

	top, err := p.Devices()
	if err != nil {
		return nil, nil, terr.Wrap(terr.BackendFailed, "list devices", err)
	}
	if err := w.devices(top); err != nil {
		return nil, nil, err
	}

	groups, err := p.DeviceGroups()
	if err != nil {
		return nil, nil, terr.Wrap(terr.BackendFailed, "list device groups", err)
	}
	queue := append([]backend.DeviceGroup(nil), groups...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		ds, err := g.Devices()
		if err != nil {
			return nil, nil, terr.Wrap(terr.BackendFailed, "list devices of group "+g.Name(), err)
		}
		if err := w.devices(ds); err != nil {
			return nil, nil, err
		}
		sub, err := g.Groups()
		if err != nil {
			return nil, nil, terr.Wrap(terr.BackendFailed, "list subgroups of "+g.Name(), err)
		}
		queue = append(queue, sub...)
	}

	ungrouped, err := p.UngroupedDevices()
	if err != nil {
		return nil, nil, terr.Wrap(terr.BackendFailed, "list ungrouped devices", err)
	}
	if err := w.devices(ungrouped); err != nil {
		return nil, nil, err
	}
	return w.nodes, w.plcs, nil
}

type walk struct {
	nodes []*composition.Node
	plcs  []backend.PlcSoftware
}

func (w *walk) devices(ds []backend.Device) error {
	for _, d := range ds {
		items, err := d.Items()
		if err != nil {
			return terr.Wrap(terr.BackendFailed, "list items of "+d.Name(), err)
		}
		for _, it := range items {
			sw, err := it.Software()
			if err != nil {
				return terr.Wrap(terr.BackendFailed, "software of "+it.Name(), err)
			}
			if sw == nil {
				continue
			}
			n, err := w.software(d, sw)
			if err != nil {
				return err
			}
			w.nodes = append(w.nodes, n)
		}
	}
	return nil
}

func (w *walk) software(d backend.Device, sw backend.Software) (*composition.Node, error) {
	switch s := sw.(type) {
	case backend.PlcSoftware:
		w.plcs = append(w.plcs, s)
		return plcProgram(s)
	case backend.HmiTarget:
		return &composition.Node{Kind: composition.KindHmiDevice, Name: s.Name(), Path: s.Name(), Ref: s}, nil
	case backend.HmiSoftware:
		conns, err := s.Connections()
		if err != nil {
			return nil, terr.Wrap(terr.BackendFailed, "list connections of "+s.Name(), err)
		}
		n := &composition.Node{Kind: composition.KindHmiUnifiedDevice, Name: s.Name(), Path: s.Name(), Ref: s}
		for _, c := range conns {
			n.Connections = append(n.Connections, c.Partner)
		}
		return n, nil
	default:
		return &composition.Node{Kind: composition.KindDevice, Name: d.Name(), Path: d.Name(), Ref: d}, nil
	}
}

func plcProgram(s backend.PlcSoftware) (*composition.Node, error) {
	root := &composition.Node{Kind: composition.KindPlcProgram, Name: s.Name(), Path: s.Name(), Ref: s}

	bg, err := s.BlockGroup()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "block group of "+s.Name(), err)
	}
	if err := blocks(root, bg); err != nil {
		return nil, err
	}

	// Types and tag tables live below their system folders so their names
	// cannot collide with blocks at the program root.
	tg, err := s.TypeGroup()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "type group of "+s.Name(), err)
	}
	tn, err := container(root, tg.Name(), TypesFolder, tg)
	if err != nil {
		return nil, err
	}
	if err := types(tn, tg); err != nil {
		return nil, err
	}

	ttg, err := s.TagTableGroup()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "tag table group of "+s.Name(), err)
	}
	ttn, err := container(root, ttg.Name(), TagTablesFolder, ttg)
	if err != nil {
		return nil, err
	}
	if err := tagTables(ttn, ttg); err != nil {
		return nil, err
	}
	return root, nil
}

// Fallback names of the PLC system folders when the backend reports none.
const (
	TypesFolder     = "PLC data types"
	TagTablesFolder = "PLC tags"
)

func container(parent *composition.Node, name, fallback string, ref any) (*composition.Node, error) {
	if name == "" {
		name = fallback
	}
	n := &composition.Node{Kind: composition.KindGroup, Name: name, Path: composition.Join(parent.Path, name), Ref: ref}
	if err := adopt(parent, n); err != nil {
		return nil, err
	}
	return n, nil
}

// adopt appends n to parent's children. Sibling paths must stay unique.
func adopt(parent, n *composition.Node) error {
	for _, c := range parent.Children {
		if c.Path == n.Path {
			return terr.Newf(terr.Ambiguous, "%s %q and %s %q share path %s", c.Kind, c.Name, n.Kind, n.Name, n.Path)
		}
	}
	parent.Children = append(parent.Children, n)
	return nil
}

// folder abstracts the three PLC folder hierarchies for the breadth-first walk.
type folder[T any] struct {
	name   func(T) string
	leaves func(T, *composition.Node) error
	groups func(T) ([]T, error)
}

type queued[T any] struct {
	group  T
	parent *composition.Node
}

// walkFolder adds root's leaves to parent, then its user groups breadth-first as
// Group nodes referring to the backend group they describe.
func walkFolder[T any](parent *composition.Node, root T, f folder[T]) error {
	if err := f.leaves(root, parent); err != nil {
		return err
	}
	subs, err := f.groups(root)
	if err != nil {
		return terr.Wrap(terr.BackendFailed, "list groups of "+f.name(root), err)
	}
	var queue []queued[T]
	for _, g := range subs {
		queue = append(queue, queued[T]{g, parent})
	}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		name := f.name(e.group)
		node := &composition.Node{Kind: composition.KindGroup, Name: name, Path: composition.Join(e.parent.Path, name), Ref: e.group}
		if err := adopt(e.parent, node); err != nil {
			return err
		}
		if err := f.leaves(e.group, node); err != nil {
			return err
		}
		subs, err := f.groups(e.group)
		if err != nil {
			return terr.Wrap(terr.BackendFailed, "list groups of "+name, err)
		}
		for _, g := range subs {
			queue = append(queue, queued[T]{g, node})
		}
	}
	return nil
}

func blocks(parent *composition.Node, root backend.BlockGroup) error {
	return walkFolder(parent, root, folder[backend.BlockGroup]{
		name:   backend.BlockGroup.Name,
		groups: backend.BlockGroup.Groups,
		leaves: func(g backend.BlockGroup, n *composition.Node) error {
			bs, err := g.Blocks()
			if err != nil {
				return terr.Wrap(terr.BackendFailed, "list blocks of "+g.Name(), err)
			}
			for _, b := range bs {
				err := adopt(n, &composition.Node{
					Kind:   BlockKind(b.Type()),
					Name:   b.Name(),
					Number: uint(max(b.Number(), 0)),
					Path:   composition.Join(n.Path, b.Name()),
					Ref:    b,
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func types(parent *composition.Node, root backend.TypeGroup) error {
	return walkFolder(parent, root, folder[backend.TypeGroup]{
		name:   backend.TypeGroup.Name,
		groups: backend.TypeGroup.Groups,
		leaves: func(g backend.TypeGroup, n *composition.Node) error {
			ts, err := g.Types()
			if err != nil {
				return terr.Wrap(terr.BackendFailed, "list types of "+g.Name(), err)
			}
			for _, t := range ts {
				err := adopt(n, &composition.Node{
					Kind: composition.KindDataType,
					Name: t.Name(),
					Path: composition.Join(n.Path, t.Name()),
					Ref:  t,
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	})
}

func tagTables(parent *composition.Node, root backend.TagTableGroup) error {
	return walkFolder(parent, root, folder[backend.TagTableGroup]{
		name:   backend.TagTableGroup.Name,
		groups: backend.TagTableGroup.Groups,
		leaves: func(g backend.TagTableGroup, n *composition.Node) error {
			ts, err := g.TagTables()
			if err != nil {
				return terr.Wrap(terr.BackendFailed, "list tag tables of "+g.Name(), err)
			}
			for _, t := range ts {
				err := adopt(n, &composition.Node{
					Kind: composition.KindTagTable,
					Name: t.Name(),
					Path: composition.Join(n.Path, t.Name()),
					Ref:  t,
				})
				if err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// BlockKind maps a backend block type to its node kind. Unknown types stay
// generic blocks.
func BlockKind(t backend.BlockType) composition.Kind {
	switch t {
	case backend.BlockOB:
		return composition.KindOrganizationBlock
	case backend.BlockFC:
		return composition.KindFunction
	case backend.BlockFB:
		return composition.KindFunctionBlock
	case backend.BlockGlobalDB:
		return composition.KindGlobalData
	case backend.BlockInstanceDB:
		return composition.KindInstanceData
	default:
		return composition.KindBlock
	}
}
