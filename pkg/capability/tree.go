// Package capability flattens the recursive capability declarations handed to
// the identity layer at boot.
package capability

import "sort"

// Node is one capability in a declaration tree. Dependencies inherit the
// parent name as a prefix.
type Node struct {
	Name         string
	Description  string
	Order        int
	Dependencies []Node
}

// Capability is one flattened declaration.
type Capability struct {
	ID          string
	Description string
	Order       int
}

// Flatten walks the trees and produces the complete, order-sorted capability
// list with underscore-prefixed identifiers (KNOWLEDGE, KNOWLEDGE_KNUPDATE,
// KNOWLEDGE_KNUPDATE_KNDELETE, ...).
func Flatten(trees []Node) []Capability {
	var out []Capability
	for _, tree := range trees {
		out = append(out, walk("", tree)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func walk(prefix string, node Node) []Capability {
	id := node.Name
	if prefix != "" {
		id = prefix + "_" + node.Name
	}
	out := []Capability{{ID: id, Description: node.Description, Order: node.Order}}
	for _, dep := range node.Dependencies {
		out = append(out, walk(id, dep)...)
	}
	return out
}
