package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketnav/test/memstore"
)

func resetReadOnly(t *testing.T) {
	t.Helper()
	readOnly = false
	viper.Set("readonly", false)
	require.NoError(t, rootCmd.PersistentFlags().Set("readonly", "false"))
}

func TestReadOnly_BlocksMutations(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("a"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"cp", []string{"--readonly", "cp", "data/a.txt", "data/b.txt"}},
		{"mv object", []string{"--readonly", "mv", "data/a.txt", "c.txt"}},
		{"mv folder", []string{"--readonly", "mv", "data/", "moved"}},
		{"rm object", []string{"--readonly", "rm", "data/a.txt"}},
		{"rm folder", []string{"--readonly", "rm", "data/"}},
		{"rm trash", []string{"--readonly", "rm", "data/", "--trash"}},
		{"upload", []string{"--readonly", "upload", local, "--to", "data/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReadOnly(t)
			store := memstore.New().Seed("data/a.txt", []byte("a"), "text/plain")
			useStore(t, store)

			res := run(t, tt.args...)
			resetReadOnly(t)

			require.Error(t, res.err)
			assert.Contains(t, res.err.Error(), "readonly")
			assert.Equal(t, []string{"data/a.txt"}, store.Keys())
			assert.Zero(t, store.DeleteCalls())
		})
	}
}

func TestReadOnly_FromConfig(t *testing.T) {
	resetReadOnly(t)
	store := memstore.New().Seed("data/a.txt", []byte("a"), "text/plain")
	useStore(t, store)
	setConfig(t, "readonly", true)

	res := run(t, "rm", "data/a.txt")

	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "readonly")
	assert.True(t, store.Has("data/a.txt"))
}

func TestReadOnly_AllowsReads(t *testing.T) {
	resetReadOnly(t)
	useStore(t, memstore.New().Seed("data/a.txt", []byte("a"), "text/plain"))

	res := run(t, "--readonly", "ls", "data/")
	resetReadOnly(t)

	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "a.txt")
}
