package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes cmd against the demo project with an isolated config.
func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ARCHON_LOG_LEVEL", "error")

	demo = true
	t.Cleanup(func() { demo = false })

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTreeCommand(t *testing.T) {
	out, _, err := run(t, newTreeCmd(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "├── node_modules/\n├── public/\n├── src/\n"), out)
	assert.Contains(t, out, "── package.json\n")
	assert.Contains(t, out, "── .env\n")
	assert.Equal(t, 6, strings.Count(out, "\n"))
}

func TestTreeCommandAll(t *testing.T) {
	out, _, err := run(t, newTreeCmd(), "", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "│   ├── components/\n│   │   └── ProductCard.tsx\n")
	assert.NotContains(t, out, "index.js", "deny-set directories stay collapsed")
}

func TestCatCommand(t *testing.T) {
	out, _, err := run(t, newCatCmd(), "", "src/types.ts")
	require.NoError(t, err)
	assert.Contains(t, out, "export interface Product")

	_, _, err = run(t, newCatCmd(), "", "src/missing.ts")
	assert.Error(t, err)
}

func TestHarvestCommand(t *testing.T) {
	out, stderr, err := run(t, newHarvestCmd(), "")
	require.NoError(t, err)

	assert.Contains(t, out, "\n// File: /src/App.tsx\n")
	assert.Contains(t, out, "\n// File: /package.json\n")
	assert.NotContains(t, out, "node_modules")
	assert.NotContains(t, out, "logo.svg")
	assert.NotContains(t, out, "API_URL")
	assert.Contains(t, stderr, "context: 7 files")
}

func TestHarvestCommandOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "context.txt")
	stdout, _, err := run(t, newHarvestCmd(), "", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n// File: /src/App.tsx\n")

	_, _, err = run(t, newHarvestCmd(), "", "-o", filepath.Join(t.TempDir(), "missing", "context.txt"))
	assert.Error(t, err)
}

func TestSplitPathArg(t *testing.T) {
	root, last := splitPathArg([]string{"sftp://dev@box/app", "src/a.ts"})
	assert.Equal(t, []string{"sftp://dev@box/app"}, root)
	assert.Equal(t, "src/a.ts", last)

	root, last = splitPathArg([]string{"src/a.ts"})
	assert.Empty(t, root)
	assert.Equal(t, "src/a.ts", last)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	out, _, err := run(t, newInitCmd(), "")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
	assert.FileExists(t, path)

	_, _, err = run(t, newInitCmd(), "")
	assert.Error(t, err, "refuses to overwrite")

	_, _, err = run(t, newInitCmd(), "", "--force")
	assert.NoError(t, err)
}
