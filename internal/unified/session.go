// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package unified

import (
	"sync"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// Session owns one exclusive-access handle on a project. Every mutation runs in
// its own named sub-transaction through Do. Close releases the handle; it must be
// called on every exit path.
type Session struct {
	access  backend.ExclusiveAccess
	project backend.Project

	mu     sync.Mutex
	closed bool
}

// NewSession wraps an acquired exclusive-access handle.
func NewSession(access backend.ExclusiveAccess, project backend.Project) *Session {
	return &Session{access: access, project: project}
}

// Project returns the project the session writes to.
func (s *Session) Project() backend.Project { return s.project }

// Languages returns the project's active languages.
func (s *Session) Languages() []string { return s.project.ActiveLanguages() }

// SetText updates the progress text shown by the engineering tool.
func (s *Session) SetText(text string) { s.access.SetText(text) }

// Do runs fn inside a sub-transaction named name. The sub-transaction commits only
// when fn returns nil; otherwise it is rolled back and the session stays usable.
func (s *Session) Do(name string, fn func() error) (err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return terr.New(terr.TransactionFailed, "session already closed")
	}

	tx, err := s.access.Transaction(s.project, name)
	if err != nil {
		return terr.Wrap(terr.TransactionFailed, "open transaction "+name, err)
	}
	defer func() {
		if derr := tx.Dispose(); derr != nil && err == nil {
			err = terr.Wrap(terr.TransactionFailed, "close transaction "+name, derr)
		}
	}()

	if ferr := fn(); ferr != nil {
		return terr.Wrap(terr.TransactionFailed, name, ferr)
	}
	tx.CommitOnDispose()
	return nil
}

// Close releases the exclusive access. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.access.Dispose(); err != nil {
		return terr.Wrap(terr.BackendFailed, "release exclusive access", err)
	}
	return nil
}
