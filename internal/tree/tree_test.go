package tree

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archon/internal/store"
	"archon/internal/store/memfs"
)

// countingDir counts Entries calls on a directory.
type countingDir struct {
	store.Dir
	calls atomic.Int32
}

func (d *countingDir) Entries(ctx context.Context) ([]store.Entry, error) {
	d.calls.Add(1)
	return d.Dir.Entries(ctx)
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func sampleProject() *memfs.Dir {
	root := memfs.New("project")
	root.WriteFile("zeta.md", "z")
	root.WriteFile("src/main.ts", "main")
	root.WriteFile("src/util/strings.ts", "strings")
	root.WriteFile("alpha.ts", "a")
	root.MkdirAll("docs")
	root.MkdirAll("empty")
	return root
}

func TestSortEntries(t *testing.T) {
	root := memfs.New("r")
	root.WriteFile("b.ts", "")
	root.MkdirAll("zdir")
	root.WriteFile("a.ts", "")
	root.MkdirAll("adir")
	root.WriteFile("c.md", "")

	entries, err := root.Entries(context.Background())
	require.NoError(t, err)
	SortEntries(entries)

	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.Equal(t, []string{"adir", "zdir", "a.ts", "b.ts", "c.md"}, got)
}

func TestSortEntriesIgnoresCase(t *testing.T) {
	root := memfs.New("r")
	root.WriteFile("B.ts", "")
	root.WriteFile("c.md", "")
	root.WriteFile("a.ts", "")
	root.MkdirAll("Zdir")
	root.MkdirAll("adir")

	entries, err := root.Entries(context.Background())
	require.NoError(t, err)
	SortEntries(entries)

	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.Equal(t, []string{"adir", "Zdir", "a.ts", "B.ts", "c.md"}, got)
}

func TestRefreshSortsDirectoriesFirst(t *testing.T) {
	tr, err := Refresh(context.Background(), sampleProject())
	require.NoError(t, err)

	assert.Equal(t, []string{"docs", "empty", "src", "alpha.ts", "zeta.md"}, names(tr))
	for _, n := range tr {
		assert.False(t, n.Expanded)
		assert.Nil(t, n.Children)
	}
}

func TestBuildChildrenAccessError(t *testing.T) {
	root := memfs.New("r")
	root.FailEntries(errors.New("permission denied"))

	children, err := BuildChildren(context.Background(), root)
	var accessErr *store.AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.NotNil(t, children)
	assert.Empty(t, children)
}

func TestToggleExpansionLazyLoad(t *testing.T) {
	ctx := context.Background()
	root := sampleProject()

	srcEntry, ok := root.Lookup("src")
	require.True(t, ok)
	counting := &countingDir{Dir: srcEntry.(store.Dir)}
	tr := Tree{{Name: "src", Kind: store.KindDirectory, Handle: counting}}

	expanded, err := ToggleExpansion(ctx, tr[0], tr)
	require.NoError(t, err)
	assert.True(t, expanded[0].Expanded)
	assert.Equal(t, []string{"util", "main.ts"}, names(expanded[0].Children))
	assert.Equal(t, int32(1), counting.calls.Load())

	collapsedTree, err := ToggleExpansion(ctx, expanded[0], expanded)
	require.NoError(t, err)
	assert.False(t, collapsedTree[0].Expanded)
	assert.Len(t, collapsedTree[0].Children, 2)

	again, err := ToggleExpansion(ctx, collapsedTree[0], collapsedTree)
	require.NoError(t, err)
	assert.True(t, again[0].Expanded)
	assert.Equal(t, int32(1), counting.calls.Load(), "children are not re-enumerated")
	assert.Same(t, expanded[0].Children[0], again[0].Children[0])
}

func TestToggleExpansionCopyOnWrite(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	src := tr[2]
	withSrc, err := ToggleExpansion(ctx, src, tr)
	require.NoError(t, err)

	util := withSrc[2].Children[0]
	withUtil, err := ToggleExpansion(ctx, util, withSrc)
	require.NoError(t, err)

	// The earlier trees are untouched.
	assert.False(t, tr[2].Expanded)
	assert.Nil(t, tr[2].Children)
	assert.False(t, withSrc[2].Children[0].Expanded)

	// Only the root-to-node path was copied.
	assert.Same(t, withSrc[0], withUtil[0])
	assert.Same(t, withSrc[4], withUtil[4])
	assert.Same(t, withSrc[2].Children[1], withUtil[2].Children[1])
	assert.NotSame(t, withSrc[2], withUtil[2])

	assert.Equal(t, []string{"strings.ts"}, names(withUtil[2].Children[0].Children))
	assert.Equal(t, 8, withUtil.Len())
}

func TestToggleExpansionFileIsNoop(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	next, err := ToggleExpansion(ctx, tr[3], tr)
	require.NoError(t, err)
	assert.Equal(t, tr, next)
}

func TestToggleExpansionNodeNotFound(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	// A node from another project has a different handle.
	other, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	next, err := ToggleExpansion(ctx, other[2], tr)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Equal(t, tr, next)

	_, err = ToggleExpansion(ctx, nil, tr)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestToggleExpansionEmptyDirectory(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	next, err := ToggleExpansion(ctx, tr[1], tr)
	require.NoError(t, err)
	assert.True(t, next[1].Expanded)
	assert.NotNil(t, next[1].Children)
	assert.Empty(t, next[1].Children)
}

func TestToggleExpansionAccessError(t *testing.T) {
	ctx := context.Background()
	root := sampleProject()
	tr, err := Refresh(ctx, root)
	require.NoError(t, err)

	docs, ok := root.Lookup("docs")
	require.True(t, ok)
	docs.(*memfs.Dir).FailEntries(errors.New("denied"))

	next, err := ToggleExpansion(ctx, tr[0], tr)
	var accessErr *store.AccessError
	require.ErrorAs(t, err, &accessErr)
	assert.True(t, next[0].Expanded)
	assert.Empty(t, next[0].Children)
}

func TestReloadPicksUpNewEntries(t *testing.T) {
	ctx := context.Background()
	root := sampleProject()
	tr, err := Refresh(ctx, root)
	require.NoError(t, err)

	tr, err = Expand(ctx, tr[2], tr)
	require.NoError(t, err)
	assert.Len(t, tr[2].Children, 2)

	root.WriteFile("src/added.ts", "")

	stale, err := Expand(ctx, tr[2], tr)
	require.NoError(t, err)
	assert.Len(t, stale[2].Children, 2, "expand reuses loaded children")

	reloaded, err := Reload(ctx, tr[2], tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"util", "added.ts", "main.ts"}, names(reloaded[2].Children))
}

func TestCollapseKeepsChildren(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)

	tr, err = Expand(ctx, tr[2], tr)
	require.NoError(t, err)
	closed, err := Collapse(tr[2], tr)
	require.NoError(t, err)
	assert.False(t, closed[2].Expanded)
	assert.Len(t, closed[2].Children, 2)

	same, err := Collapse(closed[2], closed)
	require.NoError(t, err)
	assert.Equal(t, closed, same)
}

func TestFindAndVisible(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)
	tr, err = Expand(ctx, tr[2], tr)
	require.NoError(t, err)

	mainTS := tr[2].Children[1]
	found, ok := tr.Find(mainTS.Handle)
	require.True(t, ok)
	assert.Same(t, mainTS, found)

	_, ok = tr.Find(nil)
	assert.False(t, ok)

	var rows, prefixes []string
	for _, v := range tr.Visible() {
		rows = append(rows, v.Node.Name)
		prefixes = append(prefixes, v.Prefix)
	}
	assert.Equal(t, []string{"docs", "empty", "src", "util", "main.ts", "alpha.ts", "zeta.md"}, rows)
	assert.Equal(t, "│   ├── ", prefixes[3])
	assert.Equal(t, "│   └── ", prefixes[4])
	assert.Equal(t, "└── ", prefixes[6])
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	tr, err := Refresh(ctx, sampleProject())
	require.NoError(t, err)
	tr, err = Expand(ctx, tr[2], tr)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(tr, &buf))

	want := "├── docs/\n" +
		"├── empty/\n" +
		"├── src/\n" +
		"│   ├── util/\n" +
		"│   └── main.ts\n" +
		"├── alpha.ts\n" +
		"└── zeta.md\n"
	assert.Equal(t, want, buf.String())
}
