// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	base := stderrors.New("registry key missing")
	err := fmt.Errorf("initialize: %w", Wrap(NotInstalled, "V15.0 or later required", base))

	if !IsKind(err, NotInstalled) {
		t.Errorf("IsKind(NotInstalled) = false, want true")
	}
	if IsKind(err, NotFound) {
		t.Errorf("IsKind(NotFound) = true, want false")
	}
	if !stderrors.Is(err, base) {
		t.Errorf("wrapped cause lost")
	}
	if got := KindOf(err); got != NotInstalled {
		t.Errorf("KindOf() = %q, want %q", got, NotInstalled)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "without cause",
			err:  New(LookupFailed, `connection "PLC_9" not declared`),
			want: `lookup_failed: connection "PLC_9" not declared`,
		},
		{
			name: "with cause",
			err:  Wrap(BackendFailed, "rename tag", stderrors.New("name in use")),
			want: "backend_failed: rename tag: name in use",
		},
		{
			name: "formatted",
			err:  Newf(Ambiguous, "%d libraries match %s/%s", 2, "16.0", "16.0"),
			want: "ambiguous: 2 libraries match 16.0/16.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(stderrors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}
