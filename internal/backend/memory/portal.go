// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package memory is an in-process engineering backend. Its project model is built
// from a YAML Snapshot and lives only in RAM; mutations made inside a transaction
// are recorded in an undo log so an uncommitted transaction rolls back on Dispose,
// mirroring commit-on-success scopes of the real engineering tool.
//
// The backend enforces the constraints tiasync relies on: unique HMI tag, alarm and
// tag table names per HMI software, one exclusive-access holder at a time, and one
// open transaction per exclusive access.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/resolver"
)

// state is shared by every object of one portal.
type state struct {
	mu        sync.Mutex
	exclusive *exclusiveAccess
	tx        *transaction
}

// record appends an undo step to the open transaction, if any.
// Callers hold s.mu.
func (s *state) record(undo func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, undo)
	}
}

// Portal implements backend.Portal over an in-memory model.
type Portal struct {
	st        *state
	processes []backend.Process
	projects  map[string]*project
	order     []string
	source    string // snapshot file, empty when loaded from a reader
}

var _ backend.Portal = (*Portal)(nil)

// New builds a portal from snap.
func New(snap Snapshot) (*Portal, error) {
	p := &Portal{
		st:       &state{},
		projects: make(map[string]*project),
	}
	for _, ps := range snap.Projects {
		if ps.Path == "" {
			return nil, terr.New(terr.InvalidInput, "snapshot project without path")
		}
		key := filepath.Clean(ps.Path)
		if _, dup := p.projects[key]; dup {
			return nil, terr.Newf(terr.InvalidInput, "snapshot project %s listed twice", ps.Path)
		}
		pr, err := buildProject(p.st, ps)
		if err != nil {
			return nil, err
		}
		p.projects[key] = pr
		p.order = append(p.order, key)
	}
	for _, proc := range snap.Processes {
		p.processes = append(p.processes, backend.Process{ID: proc.ID, ProjectPath: proc.Project})
	}
	return p, nil
}

func (p *Portal) Processes(ctx context.Context) ([]backend.Process, error) {
	out := make([]backend.Process, len(p.processes))
	copy(out, p.processes)
	return out, nil
}

func (p *Portal) Attach(ctx context.Context, pid int) (backend.Project, error) {
	for _, proc := range p.processes {
		if proc.ID != pid {
			continue
		}
		if proc.ProjectPath == "" {
			return nil, nil
		}
		pr, ok := p.projects[filepath.Clean(proc.ProjectPath)]
		if !ok {
			return nil, terr.Newf(terr.NotFound, "process %d has unknown project %s", pid, proc.ProjectPath)
		}
		return pr, nil
	}
	return nil, terr.Newf(terr.NotFound, "no engineering process with id %d", pid)
}

func (p *Portal) Open(ctx context.Context, path string, multiuser bool) (backend.Project, error) {
	pr, ok := p.projects[filepath.Clean(path)]
	if !ok {
		return nil, terr.Newf(terr.NotFound, "project %s is not part of the snapshot", path)
	}
	if pr.multiuser != multiuser {
		return nil, terr.Newf(terr.InvalidInput, "project %s multiuser=%t, requested %t", path, pr.multiuser, multiuser)
	}
	return pr, nil
}

// Registry returns a registry announcing one installation per project version of
// a snapshot loaded with LoadFile. Each registers the snapshot file as its
// library so the resolver finds it present.
func (p *Portal) Registry() *resolver.MemoryRegistry {
	reg := &resolver.MemoryRegistry{}
	if p.source == "" {
		return reg
	}
	for _, k := range p.order {
		v := p.projects[k].version
		if v == "" {
			continue
		}
		reg.Set(resolver.BasePath+`\`+v+`\PublicAPI\`+v+".0.0", "Siemens.Engineering", p.source)
	}
	return reg
}

// Projects returns the snapshot's projects in file order.
func (p *Portal) Projects() []backend.Project {
	out := make([]backend.Project, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, p.projects[k])
	}
	return out
}

func (p *Portal) ExclusiveAccess(text string) (backend.ExclusiveAccess, error) {
	p.st.mu.Lock()
	defer p.st.mu.Unlock()
	if p.st.exclusive != nil {
		return nil, terr.New(terr.BackendFailed, "exclusive access already held")
	}
	ea := &exclusiveAccess{st: p.st, text: text}
	p.st.exclusive = ea
	return ea, nil
}

// Close releases any exclusive access still held, rolling back its open transaction.
func (p *Portal) Close() error {
	p.st.mu.Lock()
	ea := p.st.exclusive
	p.st.mu.Unlock()
	if ea != nil {
		return ea.Dispose()
	}
	return nil
}

type exclusiveAccess struct {
	st       *state
	text     string
	disposed bool
}

func (e *exclusiveAccess) SetText(text string) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.text = text
}

// Text returns the progress text last set on the handle.
func (e *exclusiveAccess) Text() string {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	return e.text
}

func (e *exclusiveAccess) Transaction(p backend.Project, name string) (backend.Transaction, error) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	if e.disposed {
		return nil, terr.New(terr.BackendFailed, "exclusive access already disposed")
	}
	if _, ok := p.(*project); !ok {
		return nil, terr.Newf(terr.InvalidInput, "transaction target %T is not a memory project", p)
	}
	if e.st.tx != nil {
		return nil, terr.Newf(terr.BackendFailed, "transaction %q still open", e.st.tx.name)
	}
	tx := &transaction{st: e.st, name: name}
	e.st.tx = tx
	return tx, nil
}

func (e *exclusiveAccess) Dispose() error {
	e.st.mu.Lock()
	if e.disposed {
		e.st.mu.Unlock()
		return nil
	}
	tx := e.st.tx
	e.st.mu.Unlock()

	if tx != nil {
		if err := tx.Dispose(); err != nil {
			return err
		}
	}

	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	e.disposed = true
	if e.st.exclusive == e {
		e.st.exclusive = nil
	}
	return nil
}

type transaction struct {
	st       *state
	name     string
	commit   bool
	undo     []func()
	disposed bool
}

func (t *transaction) CommitOnDispose() {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	t.commit = true
}

func (t *transaction) Dispose() error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()
	if t.disposed {
		return nil
	}
	t.disposed = true
	if t.st.tx == t {
		t.st.tx = nil
	}
	if !t.commit {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	t.undo = nil
	return nil
}

func (t *transaction) String() string { return fmt.Sprintf("transaction %q", t.name) }
