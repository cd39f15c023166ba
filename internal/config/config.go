// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the tag database DSN and the agent
// token go to the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"tiasync/cli/internal/xdg"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendAgent  = "agent"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel           string      `json:"log_level"`
	EngineeringVersion string      `json:"engineering_version"`
	APIVersion         string      `json:"api_version"`
	Backend            string      `json:"backend"`
	Snapshot           string      `json:"snapshot"`
	Agent              AgentConfig `json:"agent"`
	ExportFolder       string      `json:"export_folder"`
	Tags               TagDBConfig `json:"tags"`
}

// AgentConfig locates the remote engineering agent.
type AgentConfig struct {
	Address  string `json:"address"`
	Insecure bool   `json:"insecure"`
}

// TagDBConfig describes the plant tag database read by "sync --from-db".
type TagDBConfig struct {
	Table      string `json:"table"`
	AlarmTable string `json:"alarm_table"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	return Config{
		LogLevel:     "info",
		Backend:      BackendMemory,
		Agent:        AgentConfig{Address: "localhost:50551"},
		ExportFolder: "Exports",
		Tags:         TagDBConfig{Table: "hmi_tags", AlarmTable: "hmi_alarms"},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file returns Defaults. Fields absent from
// the file keep their default values.
func Load() (Config, error) {
	c := Defaults()
	p, err := path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
