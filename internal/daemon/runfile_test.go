package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/run", "gebrd-ws1.run"), RunFilePath("/run", "ws1"))
}

func TestClaimRunFile_Fresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "gebrd-ws1.run")

	require.NoError(t, ClaimRunFile(path, 2125, func(int) bool { return true }))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2125\n", string(data))
	port, err := ReadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2125, port)
}

func TestClaimRunFile_LiveDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gebrd-ws1.run")
	require.NoError(t, os.WriteFile(path, []byte("4000\n"), 0o644))

	err := ClaimRunFile(path, 5000, func(port int) bool { return port == 4000 })

	var are *AlreadyRunningError
	require.ErrorAs(t, err, &are)
	assert.Equal(t, 4000, are.Port)
	port, _ := ReadRunFile(path)
	assert.Equal(t, 4000, port, "the live daemon's file is kept")
}

func TestClaimRunFile_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gebrd-ws1.run")
	require.NoError(t, os.WriteFile(path, []byte("4000\n"), 0o644))

	require.NoError(t, ClaimRunFile(path, 5000, func(int) bool { return false }))

	port, err := ReadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, port)
}

func TestClaimRunFile_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gebrd-ws1.run")
	require.NoError(t, os.WriteFile(path, []byte("not a port"), 0o644))

	require.NoError(t, ClaimRunFile(path, 5000, func(int) bool { return true }))
	port, err := ReadRunFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, port)
}

func TestRemoveRunFile_Missing(t *testing.T) {
	RemoveRunFile(filepath.Join(t.TempDir(), "nothing.run"))
}
