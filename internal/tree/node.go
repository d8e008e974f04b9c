// Package tree mirrors a store directory as an immutable, lazily expanded
// tree of nodes.
//
// Nodes are never mutated once they are part of a Tree. Every update
// copies the path from the root to the changed node and shares the rest,
// so a Tree held by a reader stays valid while newer trees are built.
package tree

import (
	"errors"

	"archon/internal/store"
)

// ErrNodeNotFound is returned when a node's handle is not in the tree.
var ErrNodeNotFound = errors.New("node not found in tree")

// Node is one entry in the mirrored tree.
type Node struct {
	Name   string
	Kind   store.Kind
	Handle store.Entry

	// Children is nil until the directory is first expanded. Files never
	// carry children.
	Children []*Node
	Expanded bool
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == store.KindDirectory
}

// Loaded reports whether the directory's children were enumerated.
func (n *Node) Loaded() bool {
	return n.Children != nil
}

func newNode(e store.Entry) *Node {
	return &Node{Name: e.Name(), Kind: e.Kind(), Handle: e}
}

// Tree is the ordered list of top-level nodes under the project root.
type Tree []*Node

// Len returns the number of loaded nodes.
func (t Tree) Len() int {
	n := 0
	t.Walk(func(*Node, int) bool {
		n++
		return true
	})
	return n
}

// Walk visits loaded nodes depth-first in sibling order. Returning false
// from fn skips the node's children.
func (t Tree) Walk(fn func(n *Node, depth int) bool) {
	walk(t, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) && len(n.Children) > 0 {
			walk(n.Children, depth+1, fn)
		}
	}
}

// Find returns the node whose handle is h.
func (t Tree) Find(h store.Entry) (*Node, bool) {
	path := t.locate(h)
	if path == nil {
		return nil, false
	}
	return t.at(path), true
}

// Replace returns a copy of t with the node sharing n's handle replaced
// by n. Only the root-to-node path is copied.
func (t Tree) Replace(n *Node) (Tree, bool) {
	if n == nil {
		return t, false
	}
	path := t.locate(n.Handle)
	if path == nil {
		return t, false
	}
	return t.replaceAt(path, func(*Node) *Node { return n }), true
}

// VisibleNode is a node with its display depth.
type VisibleNode struct {
	Node   *Node
	Depth  int
	Last   bool   // last among its siblings
	Prefix string // tree connectors drawn before the name
}

// Visible lists nodes shown when only expanded directories are opened.
func (t Tree) Visible() []VisibleNode {
	var out []VisibleNode
	var visit func(nodes []*Node, depth int, prefix string)
	visit = func(nodes []*Node, depth int, prefix string) {
		for i, n := range nodes {
			last := i == len(nodes)-1
			connector, childPrefix := unicodeChars.Branch, prefix+unicodeChars.Vertical
			if last {
				connector, childPrefix = unicodeChars.LastBranch, prefix+unicodeChars.Space
			}
			out = append(out, VisibleNode{Node: n, Depth: depth, Last: last, Prefix: prefix + connector})
			if n.IsDir() && n.Expanded {
				visit(n.Children, depth+1, childPrefix)
			}
		}
	}
	visit(t, 0, "")
	return out
}

// locate returns the index path to the node with handle h, or nil.
func (t Tree) locate(h store.Entry) []int {
	if h == nil {
		return nil
	}
	var search func(nodes []*Node, prefix []int) []int
	search = func(nodes []*Node, prefix []int) []int {
		for i, n := range nodes {
			p := append(prefix[:len(prefix):len(prefix)], i)
			if store.SameEntry(n.Handle, h) {
				return p
			}
			if len(n.Children) > 0 {
				if found := search(n.Children, p); found != nil {
					return found
				}
			}
		}
		return nil
	}
	return search(t, nil)
}

func (t Tree) at(path []int) *Node {
	nodes := []*Node(t)
	var n *Node
	for _, i := range path {
		n = nodes[i]
		nodes = n.Children
	}
	return n
}

// replaceAt copies the slices and nodes along path and swaps the target
// for fn(target).
func (t Tree) replaceAt(path []int, fn func(*Node) *Node) Tree {
	out := make(Tree, len(t))
	copy(out, t)

	i := path[0]
	if len(path) == 1 {
		out[i] = fn(out[i])
		return out
	}

	c := *out[i]
	c.Children = Tree(c.Children).replaceAt(path[1:], fn)
	out[i] = &c
	return out
}
