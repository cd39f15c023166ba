// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirs(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "state"))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", ConfigDir, filepath.Join(base, "cfg", "tiasync")},
		{"state", StateDir, filepath.Join(base, "state", "tiasync")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("dir = %q, want %q", got, tt.want)
			}
			st, err := os.Stat(got)
			if err != nil || !st.IsDir() {
				t.Fatalf("directory not created: %v", err)
			}
		})
	}
}
