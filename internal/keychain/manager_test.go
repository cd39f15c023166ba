// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name  string
		save  func(*Manager, string) error
		load  func(*Manager) (string, error)
		clear func(*Manager)
		value string
	}{
		{"agent token", (*Manager).SaveAgentToken, (*Manager).LoadAgentToken, (*Manager).ClearAgentToken, "tok_abc"},
		{"tag dsn", (*Manager).SaveTagDSN, (*Manager).LoadTagDSN, (*Manager).ClearTagDSN, "postgres://u:p@plant/tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManagerWithRing(keyring.NewArrayKeyring(nil))
			if _, err := tt.load(m); !errors.Is(err, ErrNotFound) {
				t.Fatalf("load() before save error = %v, want ErrNotFound", err)
			}
			if err := tt.save(m, tt.value); err != nil {
				t.Fatalf("save() error = %v", err)
			}
			got, err := tt.load(m)
			if err != nil || got != tt.value {
				t.Errorf("load() = %q, %v; want %q", got, err, tt.value)
			}
			tt.clear(m)
			if _, err := tt.load(m); !errors.Is(err, ErrNotFound) {
				t.Errorf("load() after clear error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClearAll(t *testing.T) {
	m := NewManagerWithRing(keyring.NewArrayKeyring(nil))
	_ = m.SaveAgentToken("a")
	_ = m.SaveTagDSN("b")
	m.ClearAll()
	if _, err := m.LoadAgentToken(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadAgentToken() error = %v", err)
	}
	if _, err := m.LoadTagDSN(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadTagDSN() error = %v", err)
	}
}
