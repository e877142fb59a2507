package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDemoNetwork(t *testing.T) {
	out, err := execute(t, "--destination", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "Shortest distances from 0")
	assert.Contains(t, out, "5.30")
	assert.Contains(t, out, "Route 0 -> 3: 0 -> 1 -> 3 (5.30)")
}

func TestGraphAndChangeFiles(t *testing.T) {
	dir := t.TempDir()
	edges := filepath.Join(dir, "city.toml")
	require.NoError(t, os.WriteFile(edges, []byte(`
[[edge]]
from = "depot"
to = "harbour"
weight = 4

[[edge]]
from = "depot"
to = "market"
weight = 1

[[edge]]
from = "market"
to = "harbour"
weight = 1
`), 0o644))
	changes := filepath.Join(dir, "live.toml")
	require.NoError(t, os.WriteFile(changes, []byte(`
[[change]]
from = "market"
to = "harbour"
weight = 10

[[change]]
from = "depot"
to = "airport"
weight = 1
`), 0o644))

	out, err := execute(t, "--graph", edges, "--changes", changes, "--source", "depot", "--destination", "harbour")
	require.NoError(t, err)

	assert.Contains(t, out, "Applied: 1 change(s)")
	assert.Contains(t, out, "depot -> airport")
	assert.Contains(t, out, "Route depot -> harbour: depot -> harbour (4.00)")
}

func TestMissingGraphFile(t *testing.T) {
	_, err := execute(t, "--graph", filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestRejectsArguments(t *testing.T) {
	_, err := execute(t, "extra")
	assert.Error(t, err)
}
