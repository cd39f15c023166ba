// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package unified

import "strings"

// NormalizePlcTag quotes every member segment of a dotted PLC reference that
// contains a space. The first segment and segments already in quotes are kept.
// Dots inside quotes do not split. Normalizing twice yields the same string.
//
//	Motor.Speed Value.Raw  ->  Motor."Speed Value".Raw
func NormalizePlcTag(ref string) string {
	segs := splitRef(ref)
	for i := 1; i < len(segs); i++ {
		s := segs[i]
		if strings.Contains(s, " ") && !quoted(s) {
			segs[i] = `"` + s + `"`
		}
	}
	return strings.Join(segs, ".")
}

func quoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

func splitRef(ref string) []string {
	var (
		segs    []string
		b       strings.Builder
		inQuote bool
	)
	for _, r := range ref {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == '.' && !inQuote:
			segs = append(segs, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	return append(segs, b.String())
}
