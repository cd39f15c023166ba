// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so callers can tell a missing SDK installation from an
// unmatched connection name without parsing strings.
//
// The package supports wrapping underlying errors while maintaining error kind information.
// Kinds participate in errors.Is through the Kind value itself.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// NotInstalled indicates the required engineering SDK version is not installed.
	NotInstalled Kind = "not_installed"
	// NotFound indicates a version, library or object could not be resolved.
	NotFound Kind = "not_found"
	// Ambiguous indicates a lookup that must be unique matched several candidates.
	Ambiguous Kind = "ambiguous"
	// LookupFailed indicates a synchronizer reference (connection, alarm class,
	// text slot) did not match anything on the device.
	LookupFailed Kind = "lookup_failed"
	// ProjectOpen indicates a project is already open in the adapter.
	ProjectOpen Kind = "project_open"
	// NoProject indicates an operation needs an open project.
	NoProject Kind = "no_project"
	// TransactionFailed indicates a sub-transaction was aborted.
	TransactionFailed Kind = "transaction_failed"
	// BackendFailed indicates the engineering backend rejected a call.
	BackendFailed Kind = "backend_failed"
	// Unsupported indicates the platform or backend cannot serve the request.
	Unsupported Kind = "unsupported"
	// InvalidInput indicates caller-supplied data is malformed.
	InvalidInput Kind = "invalid_input"
)

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is the same Kind as e.
func (e *E) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf formats msg like fmt.Sprintf.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether any error in err's chain carries kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, kind)
}

// KindOf returns the kind of the first typed error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
