// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package export writes program blocks to XML files below the project's UserFiles
// folder, resolving slash-delimited logical paths of the form
// "<plc>/<group>/.../<block or group>".
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/composition"
	terr "tiasync/cli/internal/errors"
)

const (
	// UserFolder is the project subdirectory holding exports.
	UserFolder = "UserFiles"
	// DefaultFolder is the subdirectory of UserFolder used by Export.
	DefaultFolder = "Exports"
)

// Source yields the PLC software of the open project.
type Source func() ([]backend.PlcSoftware, error)

// Exporter resolves logical paths and exports blocks.
type Exporter struct {
	projectDir string
	source     Source
	// Folder replaces DefaultFolder when set.
	Folder string
	// Notify is called once per written file.
	Notify func(path string)
}

// New returns an exporter writing below projectDir.
func New(projectDir string, source Source) *Exporter {
	return &Exporter{projectDir: projectDir, source: source, Folder: DefaultFolder}
}

// Result is delivered by ExportAsync.
type Result struct {
	Paths []string
	Err   error
}

// ExportAsync runs Export on its own goroutine. Files are still written one by one.
// The channel receives exactly one Result and is then closed.
func (e *Exporter) ExportAsync(path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		paths, err := e.Export(path)
		ch <- Result{Paths: paths, Err: err}
	}()
	return ch
}

// Export resolves path and exports the block it names, or every block of the group
// it names including descendant groups. Segments that do not resolve export
// nothing and are not an error.
func (e *Exporter) Export(path string) ([]string, error) {
	segs := composition.Split(path)
	if len(segs) < 2 {
		return nil, nil
	}
	plcs, err := e.source()
	if err != nil {
		return nil, err
	}
	var plc backend.PlcSoftware
	for _, p := range plcs {
		if p.Name() == segs[0] {
			plc = p
			break
		}
	}
	if plc == nil {
		return nil, nil
	}

	cur, err := plc.BlockGroup()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "block group of "+plc.Name(), err)
	}
	dir := filepath.Join(e.projectDir, UserFolder, e.folder())
	for _, seg := range segs[1 : len(segs)-1] {
		next, err := findGroup(cur, seg)
		if err != nil || next == nil {
			return nil, err
		}
		cur = next
		dir = filepath.Join(dir, seg)
	}

	last := segs[len(segs)-1]
	block, err := findBlock(cur, last)
	if err != nil {
		return nil, err
	}
	if block != nil {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		written, err := e.exportBlock(filepath.Join(dir, block.Name()+".xml"), block)
		if err != nil {
			return nil, err
		}
		return []string{written}, nil
	}

	group, err := findGroup(cur, last)
	if err != nil || group == nil {
		return nil, err
	}
	return e.exportGroup(group, filepath.Join(dir, last))
}

// ExportBlock exports the block behind node. explicitPath wins over the default
// <projectDir>/UserFiles/<prefix><name>.xml.
func (e *Exporter) ExportBlock(node *composition.Node, prefix, explicitPath string) (string, error) {
	block, ok := node.Ref.(backend.Block)
	if !ok {
		return "", terr.Newf(terr.InvalidInput, "node %s is not a block", node.Path)
	}
	path := explicitPath
	if path == "" {
		path = filepath.Join(e.projectDir, UserFolder, prefix+node.Name+".xml")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	return e.exportBlock(path, block)
}

// exportGroup writes group's blocks into dir, then its descendants breadth-first
// into mirrored subdirectories.
func (e *Exporter) exportGroup(group backend.BlockGroup, dir string) ([]string, error) {
	type pending struct {
		dir   string
		group backend.BlockGroup
	}
	var written []string
	queue := []pending{{dir, group}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if err := ensureDir(p.dir); err != nil {
			return written, err
		}
		blocks, err := p.group.Blocks()
		if err != nil {
			return written, terr.Wrap(terr.BackendFailed, "list blocks of "+p.group.Name(), err)
		}
		for _, b := range blocks {
			path, err := e.exportBlock(filepath.Join(p.dir, b.Name()+".xml"), b)
			if err != nil {
				return written, err
			}
			written = append(written, path)
		}
		subs, err := p.group.Groups()
		if err != nil {
			return written, terr.Wrap(terr.BackendFailed, "list groups of "+p.group.Name(), err)
		}
		for _, sg := range subs {
			queue = append(queue, pending{filepath.Join(p.dir, sg.Name()), sg})
		}
	}
	return written, nil
}

// exportBlock replaces any existing file at path with a fresh export.
func (e *Exporter) exportBlock(path string, b backend.Block) (string, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove previous export %s: %w", path, err)
	}
	if err := b.Export(path); err != nil {
		return "", terr.Wrap(terr.BackendFailed, "export "+b.Name(), err)
	}
	if e.Notify != nil {
		e.Notify(path)
	}
	return path, nil
}

func (e *Exporter) folder() string {
	if e.Folder == "" {
		return DefaultFolder
	}
	return e.Folder
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory %s: %w", dir, err)
	}
	return nil
}

func findBlock(g backend.BlockGroup, name string) (backend.Block, error) {
	blocks, err := g.Blocks()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "list blocks of "+g.Name(), err)
	}
	for _, b := range blocks {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, nil
}

func findGroup(g backend.BlockGroup, name string) (backend.BlockGroup, error) {
	groups, err := g.Groups()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "list groups of "+g.Name(), err)
	}
	for _, sg := range groups {
		if sg.Name() == name {
			return sg, nil
		}
	}
	return nil, nil
}
