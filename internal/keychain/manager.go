// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for tiasync.
// It holds the secrets the CLI needs between runs: the bearer token presented to a
// remote engineering agent and the DSN of the plant tag database.
//
// Windows uses the Credential Manager, macOS the Keychain, Linux the Secret Service.
// When none of them is reachable an encrypted file keyring under the XDG state
// directory is used, unlocked with TIASYNC_KEYRING_PASSWORD.
package keychain

import (
	"errors"
	"os"
	"runtime"
	"sync"

	"github.com/99designs/keyring"

	"tiasync/cli/internal/xdg"
)

// Global keychain manager instance
var (
	globalManager *Manager
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "tiasync"

// Keys used for storing secrets in the OS keychain.
const (
	KeyAgentToken = "agent_token"
	KeyTagDSN     = "tag_db_dsn"
)

// PasswordEnv unlocks the file keyring fallback.
const PasswordEnv = "TIASYNC_KEYRING_PASSWORD"

// ErrNotFound is returned when a secret was never stored.
var ErrNotFound = errors.New("secret not found in keychain")

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// GetManager returns the global keychain manager instance.
// If initialization fails, it is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return globalManager, nil
}

// openRing opens the platform keyring, falling back to the file backend.
func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend}
	default:
		allowed = []keyring.BackendType{keyring.SecretServiceBackend}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		WinCredPrefix:   ServiceName,
	}
	ring, err := keyring.Open(cfg)
	if err == nil {
		return ring, nil
	}

	pass := os.Getenv(PasswordEnv)
	if pass == "" {
		return nil, errors.New("no OS keychain available; set " + PasswordEnv + " to use the file keyring")
	}
	dir, derr := xdg.StateDir()
	if derr != nil {
		return nil, derr
	}
	cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	cfg.FileDir = dir
	cfg.FilePasswordFunc = keyring.FixedStringPrompt(pass)
	return keyring.Open(cfg)
}

func (m *Manager) save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (m *Manager) load(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, err := m.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if len(it.Data) == 0 {
		return "", ErrNotFound
	}
	return string(it.Data), nil
}

func (m *Manager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ring.Remove(key)
}

// SaveAgentToken stores the bearer token sent to the engineering agent.
func (m *Manager) SaveAgentToken(token string) error { return m.save(KeyAgentToken, token) }

// LoadAgentToken returns the stored agent token or ErrNotFound.
func (m *Manager) LoadAgentToken() (string, error) { return m.load(KeyAgentToken) }

// ClearAgentToken removes the agent token.
func (m *Manager) ClearAgentToken() { m.remove(KeyAgentToken) }

// SaveTagDSN stores the tag database DSN.
func (m *Manager) SaveTagDSN(dsn string) error { return m.save(KeyTagDSN, dsn) }

// LoadTagDSN returns the stored tag database DSN or ErrNotFound.
func (m *Manager) LoadTagDSN() (string, error) { return m.load(KeyTagDSN) }

// ClearTagDSN removes the tag database DSN.
func (m *Manager) ClearTagDSN() { m.remove(KeyTagDSN) }

// ClearAll removes every tiasync secret from the keychain.
func (m *Manager) ClearAll() {
	m.ClearAgentToken()
	m.ClearTagDSN()
}
