package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasRoleCommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
		assert.NotNil(t, sub.Flags().Lookup("port"), sub.Name())
	}
	assert.ElementsMatch(t, []string{"frontier", "replica", "gateway", "crawl"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRoleCommandMissingConfig(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"frontier", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)
	require.Error(t, root.Execute())
}

func TestRoleCommandInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  workers: 0\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"crawl", "--config", path, "--port", "0"})
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build crawl")
}

func TestRoleCommandRejectsArgs(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"gateway", "extra"})
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)
	require.Error(t, root.Execute())
}
