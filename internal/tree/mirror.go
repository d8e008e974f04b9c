package tree

import (
	"context"
	"errors"

	"archon/internal/logging"
	"archon/internal/store"
)

// BuildChildren enumerates dir and returns its direct children as fresh,
// collapsed nodes in sort order. On failure it returns an empty slice and
// an AccessError.
func BuildChildren(ctx context.Context, dir store.Dir) ([]*Node, error) {
	entries, err := dir.Entries(ctx)
	if err != nil {
		var accessErr *store.AccessError
		if !errors.As(err, &accessErr) {
			err = &store.AccessError{Path: dir.Path(), Err: err}
		}
		logging.Warn("failed to list directory", "path", dir.Path(), "error", err)
		return []*Node{}, err
	}

	SortEntries(entries)

	nodes := make([]*Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, newNode(e))
	}
	return nodes, nil
}

// Refresh rebuilds the top level of the tree from root. Previously
// expanded state is discarded.
func Refresh(ctx context.Context, root store.Dir) (Tree, error) {
	children, err := BuildChildren(ctx, root)
	return Tree(children), err
}

// ToggleExpansion flips the expansion of the directory with node's handle.
// Files are a no-op. Expanding a directory with no loaded children
// enumerates it; children already loaded are reused.
//
// The returned tree shares every node off the root-to-node path with
// current. If enumeration fails, the directory is still expanded with no
// children and the AccessError is returned with the new tree. If the
// node is not in current, current is returned with ErrNodeNotFound.
func ToggleExpansion(ctx context.Context, node *Node, current Tree) (Tree, error) {
	if node == nil {
		return current, ErrNodeNotFound
	}
	if !node.IsDir() {
		return current, nil
	}

	path := current.locate(node.Handle)
	if path == nil {
		return current, ErrNodeNotFound
	}
	target := current.at(path)

	if target.Expanded {
		return current.replaceAt(path, collapsed), nil
	}
	return expand(ctx, current, path, target, false)
}

// Expand opens the directory if it is collapsed.
func Expand(ctx context.Context, node *Node, current Tree) (Tree, error) {
	if node == nil || !node.IsDir() {
		return current, nil
	}
	path := current.locate(node.Handle)
	if path == nil {
		return current, ErrNodeNotFound
	}
	target := current.at(path)
	if target.Expanded {
		return current, nil
	}
	return expand(ctx, current, path, target, false)
}

// Collapse closes the directory if it is expanded. Loaded children are
// kept for the next expansion.
func Collapse(node *Node, current Tree) (Tree, error) {
	if node == nil || !node.IsDir() {
		return current, nil
	}
	path := current.locate(node.Handle)
	if path == nil {
		return current, ErrNodeNotFound
	}
	if !current.at(path).Expanded {
		return current, nil
	}
	return current.replaceAt(path, collapsed), nil
}

// Reload re-enumerates one directory and expands it, replacing whatever
// children it had.
func Reload(ctx context.Context, node *Node, current Tree) (Tree, error) {
	if node == nil || !node.IsDir() {
		return current, nil
	}
	path := current.locate(node.Handle)
	if path == nil {
		return current, ErrNodeNotFound
	}
	return expand(ctx, current, path, current.at(path), true)
}

func expand(ctx context.Context, current Tree, path []int, target *Node, force bool) (Tree, error) {
	children := target.Children
	var err error
	if force || len(children) == 0 {
		dir, ok := store.AsDir(target.Handle)
		if !ok {
			return current, &store.AccessError{Path: target.Handle.Path(), Err: store.ErrNotDirectory}
		}
		children, err = BuildChildren(ctx, dir)
	}

	next := current.replaceAt(path, func(n *Node) *Node {
		c := *n
		c.Expanded = true
		c.Children = children
		return &c
	})
	return next, err
}

func collapsed(n *Node) *Node {
	c := *n
	c.Expanded = false
	return &c
}
