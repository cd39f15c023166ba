// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package composition holds the descriptive tree produced by one device walk.
// Nodes are plain values; the backend entity a node was built from is kept as a
// non-owning reference in Ref and never takes part in node identity.
package composition

import "strings"

// Separator joins the names of a node's ancestors into its Path.
const Separator = "/"

// Kind discriminates node variants.
type Kind string

const (
	KindGroup             Kind = "group"
	KindDevice            Kind = "device"
	KindPlcProgram        Kind = "plc_program"
	KindHmiDevice         Kind = "hmi_device"
	KindHmiUnifiedDevice  Kind = "hmi_unified_device"
	KindBlock             Kind = "block"
	KindOrganizationBlock Kind = "organization_block"
	KindFunction          Kind = "function"
	KindFunctionBlock     Kind = "function_block"
	KindGlobalData        Kind = "global_data"
	KindInstanceData      Kind = "instance_data"
	KindDataType          Kind = "data_type"
	KindTagTable          Kind = "tag_table"
)

// IsBlock reports whether k is the generic block kind or one of its specializations.
func (k Kind) IsBlock() bool {
	switch k {
	case KindBlock, KindOrganizationBlock, KindFunction, KindFunctionBlock, KindGlobalData, KindInstanceData:
		return true
	}
	return false
}

// Node is one entry of the composition tree.
type Node struct {
	Kind        Kind
	Name        string
	Number      uint // block number, 0 where not applicable
	Path        string
	Children    []*Node
	Connections []string // partner names declared on a unified HMI device
	// Ref is the backend entity the node describes.
	Ref         any
}

// Join builds a child path below parent.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + Separator + name
}

// Split breaks a logical path into its non-empty segments.
func Split(path string) []string {
	var out []string
	for _, s := range strings.Split(path, Separator) {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Walk visits nodes depth-first in order. Returning false from fn skips the
// node's children.
func Walk(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// Find returns the first node with the given path, or nil.
func Find(nodes []*Node, path string) *Node {
	var found *Node
	Walk(nodes, func(n *Node) bool {
		if found != nil {
			return false
		}
		if n.Path == path {
			found = n
			return false
		}
		return strings.HasPrefix(path, n.Path+Separator)
	})
	return found
}
