// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package memory

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/resolver"
)

type plcSoftware struct {
	name   string
	blocks *blockGroup
	types  *typeGroup
	tags   *tagTableGroup
}

func buildPlc(pr *project, ps PlcSpec) *plcSoftware {
	return &plcSoftware{
		name:   ps.Name,
		blocks: buildBlockGroup(pr, BlockGroupSpec{Name: "Program blocks", Blocks: ps.Blocks, Groups: ps.Groups}),
		types:  buildTypeGroup(FolderSpec{Name: "PLC data types", Items: ps.Types, Groups: ps.TypeGroups}),
		tags:   buildTagTableGroup(FolderSpec{Name: "PLC tags", Items: ps.TagTables, Groups: ps.TagTableGroups}),
	}
}

func (p *plcSoftware) Name() string { return p.name }

func (p *plcSoftware) BlockGroup() (backend.BlockGroup, error) {
	return p.blocks, nil
}

func (p *plcSoftware) TypeGroup() (backend.TypeGroup, error) {
	return p.types, nil
}

func (p *plcSoftware) TagTableGroup() (backend.TagTableGroup, error) {
	return p.tags, nil
}

type blockGroup struct {
	name   string
	blocks []*block
	groups []*blockGroup
}

func buildBlockGroup(pr *project, gs BlockGroupSpec) *blockGroup {
	g := &blockGroup{name: gs.Name}
	for _, bs := range gs.Blocks {
		g.blocks = append(g.blocks, &block{
			project:    pr,
			name:       bs.Name,
			number:     bs.Number,
			typ:        backend.BlockType(bs.Type),
			consistent: !bs.Inconsistent,
		})
	}
	for _, sub := range gs.Groups {
		g.groups = append(g.groups, buildBlockGroup(pr, sub))
	}
	return g
}

func (g *blockGroup) Name() string { return g.name }

func (g *blockGroup) Blocks() ([]backend.Block, error) {
	out := make([]backend.Block, len(g.blocks))
	for i, b := range g.blocks {
		out[i] = b
	}
	return out, nil
}

func (g *blockGroup) Groups() ([]backend.BlockGroup, error) {
	out := make([]backend.BlockGroup, len(g.groups))
	for i, sg := range g.groups {
		out[i] = sg
	}
	return out, nil
}

type block struct {
	project    *project
	name       string
	number     int
	typ        backend.BlockType
	consistent bool
}

func (b *block) Name() string            { return b.name }
func (b *block) Number() int             { return b.number }
func (b *block) Type() backend.BlockType { return b.typ }
func (b *block) Consistent() bool        { return b.consistent }

// blockDocument is the XML layout written by Export.
type blockDocument struct {
	XMLName     xml.Name `xml:"Document"`
	Engineering struct {
		Version string `xml:"version,attr"`
	} `xml:"Engineering"`
	Block struct {
		Type       string `xml:"Type,attr"`
		Namespace  string `xml:"xmlns,attr,omitempty"`
		Name       string `xml:"AttributeList>Name"`
		Number     int    `xml:"AttributeList>Number"`
		Consistent bool   `xml:"AttributeList>IsConsistent"`
	} `xml:"SW.Blocks.Block"`
}

// Export writes the block as an XML document. Like the engineering tool it
// refuses to overwrite an existing file.
func (b *block) Export(path string) error {
	if _, err := os.Stat(path); err == nil {
		return terr.Newf(terr.BackendFailed, "export target %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return terr.Wrap(terr.BackendFailed, "stat export target", err)
	}

	var doc blockDocument
	if v := b.project.version; v != "" {
		doc.Engineering.Version = "V" + v
		doc.Block.Namespace = resolver.Namespace(v)
	}
	doc.Block.Type = string(b.typ)
	doc.Block.Name = b.name
	doc.Block.Number = b.number
	doc.Block.Consistent = b.consistent

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal block %s: %w", b.name, err)
	}
	out = append([]byte(xml.Header), out...)
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return terr.Wrap(terr.BackendFailed, "write export", err)
	}
	return nil
}

type typeGroup struct {
	name   string
	types  []*dataType
	groups []*typeGroup
}

func buildTypeGroup(fs FolderSpec) *typeGroup {
	g := &typeGroup{name: fs.Name}
	for _, n := range fs.Items {
		g.types = append(g.types, &dataType{name: n})
	}
	for _, sub := range fs.Groups {
		g.groups = append(g.groups, buildTypeGroup(sub))
	}
	return g
}

func (g *typeGroup) Name() string { return g.name }

func (g *typeGroup) Types() ([]backend.DataType, error) {
	out := make([]backend.DataType, len(g.types))
	for i, t := range g.types {
		out[i] = t
	}
	return out, nil
}

func (g *typeGroup) Groups() ([]backend.TypeGroup, error) {
	out := make([]backend.TypeGroup, len(g.groups))
	for i, sg := range g.groups {
		out[i] = sg
	}
	return out, nil
}

type dataType struct{ name string }

func (d *dataType) Name() string { return d.name }

type tagTableGroup struct {
	name   string
	tables []*tagTable
	groups []*tagTableGroup
}

func buildTagTableGroup(fs FolderSpec) *tagTableGroup {
	g := &tagTableGroup{name: fs.Name}
	for _, n := range fs.Items {
		g.tables = append(g.tables, &tagTable{name: n})
	}
	for _, sub := range fs.Groups {
		g.groups = append(g.groups, buildTagTableGroup(sub))
	}
	return g
}

func (g *tagTableGroup) Name() string { return g.name }

func (g *tagTableGroup) TagTables() ([]backend.TagTable, error) {
	out := make([]backend.TagTable, len(g.tables))
	for i, t := range g.tables {
		out[i] = t
	}
	return out, nil
}

func (g *tagTableGroup) Groups() ([]backend.TagTableGroup, error) {
	out := make([]backend.TagTableGroup, len(g.groups))
	for i, sg := range g.groups {
		out[i] = sg
	}
	return out, nil
}

type tagTable struct{ name string }

func (t *tagTable) Name() string { return t.name }
