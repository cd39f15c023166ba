// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package resolver discovers installed engineering tool versions and the Openness
// library paths registered for them under HKLM.
package resolver

import (
	"os"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	terr "tiasync/cli/internal/errors"
)

const (
	// BasePath is the registry key holding one subkey per installed tool version.
	BasePath = `SOFTWARE\Siemens\Automation\Openness`
	// MinimumVersion is the oldest tool version tiasync works with.
	MinimumVersion = "V15.0"

	publicAPIKey        = "PublicAPI"
	engineeringAssembly = "Siemens.Engineering"
)

// Registry is read access to the local machine hive.
type Registry interface {
	// SubKeys lists the direct subkeys of path. A missing key is a not_found error.
	SubKeys(path string) ([]string, error)
	// Value reads a string value of the key at path.
	Value(path, name string) (string, error)
}

// Library is one registered Openness library.
type Library struct {
	ToolVersion string
	APIVersion  string
	Path        string
}

// Resolver answers version and library queries against a Registry.
type Resolver struct {
	reg Registry
	// Exists reports whether a library file is present. Defaults to os.Stat.
	Exists func(path string) bool
}

// New returns a resolver reading reg.
func New(reg Registry) *Resolver {
	return &Resolver{reg: reg, Exists: fileExists}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// EngineeringVersions returns the installed tool versions as major.minor tokens,
// at least MinimumVersion, ascending and without duplicates.
func (r *Resolver) EngineeringVersions() []string {
	names, err := r.reg.SubKeys(BasePath)
	if err != nil {
		return nil
	}
	return filterVersions(names)
}

// APIVersions returns the public API versions registered for an engineering version,
// filtered like EngineeringVersions.
func (r *Resolver) APIVersions(engineeringVersion string) []string {
	key, ok := r.versionKey(engineeringVersion)
	if !ok {
		return nil
	}
	names, err := r.reg.SubKeys(BasePath + `\` + key + `\` + publicAPIKey)
	if err != nil {
		return nil
	}
	return filterVersions(names)
}

// versionKey maps a major.minor token back to the registry subkey that carries it.
func (r *Resolver) versionKey(version string) (string, bool) {
	want := majorMinor(version)
	if want == "" {
		return "", false
	}
	names, err := r.reg.SubKeys(BasePath)
	if err != nil {
		return "", false
	}
	for _, n := range names {
		if majorMinor(n) == want {
			return n, true
		}
	}
	return "", false
}

// Installed reports whether any supported tool version is registered.
func (r *Resolver) Installed() bool {
	return len(r.EngineeringVersions()) > 0
}

// Libraries lists every registered library whose file exists.
func (r *Resolver) Libraries() []Library {
	tools, err := r.reg.SubKeys(BasePath)
	if err != nil {
		return nil
	}
	var out []Library
	for _, tool := range tools {
		apiPath := BasePath + `\` + tool + `\` + publicAPIKey
		apis, err := r.reg.SubKeys(apiPath)
		if err != nil {
			continue
		}
		for _, api := range apis {
			lib, err := r.reg.Value(apiPath+`\`+api, engineeringAssembly)
			if err != nil || strings.TrimSpace(lib) == "" || !r.Exists(lib) {
				continue
			}
			out = append(out, Library{ToolVersion: tool, APIVersion: api, Path: lib})
		}
	}
	return out
}

// LibraryPath returns the single library whose tool and API versions match on
// major.minor. No match is not_found, several are ambiguous.
func (r *Resolver) LibraryPath(engineeringVersion, apiVersion string) (string, error) {
	tool, api := majorMinor(engineeringVersion), majorMinor(apiVersion)
	if tool == "" || api == "" {
		return "", terr.Newf(terr.InvalidInput, "invalid version pair %q/%q", engineeringVersion, apiVersion)
	}

	var matches []Library
	for _, lib := range r.Libraries() {
		if majorMinor(lib.ToolVersion) == tool && majorMinor(lib.APIVersion) == api {
			matches = append(matches, lib)
		}
	}
	switch len(matches) {
	case 0:
		return "", terr.Newf(terr.NotFound, "no Openness library for V%s / API V%s", token(tool), token(api))
	case 1:
		return matches[0].Path, nil
	default:
		return "", terr.Newf(terr.Ambiguous, "%d Openness libraries match V%s / API V%s", len(matches), token(tool), token(api))
	}
}

// Namespace returns the Openness interface XML namespace used by a tool version.
func Namespace(toolVersion string) string {
	const prefix = "http://www.siemens.com/automation/Openness/SW/Interface/"
	mm := majorMinor(toolVersion)
	switch semver.Major(mm) {
	case "v13", "v14":
		return prefix + "v1"
	case "v15":
		if mm == "v15.1" {
			return prefix + "v2"
		}
		return prefix + "v3"
	case "v16":
		return prefix + "v4"
	default:
		return prefix + "v5"
	}
}

// majorMinor turns "V15.1", "15.1" or "15.1.0.0" into the semver prefix "v15.1".
// It returns "" for anything that is not a version.
func majorMinor(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "Vv")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) == 1 {
		parts = append(parts, "0")
	}
	v := "v" + parts[0] + "." + parts[1]
	if !semver.IsValid(v) {
		return ""
	}
	return semver.MajorMinor(v)
}

func token(mm string) string { return strings.TrimPrefix(mm, "v") }

func filterVersions(names []string) []string {
	minimum := majorMinor(MinimumVersion)
	var out []string
	for _, n := range names {
		mm := majorMinor(n)
		if mm == "" || semver.Compare(mm, minimum) < 0 {
			continue
		}
		out = append(out, mm)
	}
	semver.Sort(out)
	out = slices.Compact(out)
	for i := range out {
		out[i] = token(out[i])
	}
	return out
}
