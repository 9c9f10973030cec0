package gebrlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatedLog_SwitchesFileOnNewDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	dl, err := newAt(dir, "gebrd", func() time.Time { return day })
	require.NoError(t, err)
	defer dl.Close()

	_, err = dl.Write([]byte("first\n"))
	require.NoError(t, err)

	day = day.Add(2 * time.Minute)
	_, err = dl.Write([]byte("second\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "gebrd-20240302.log"), dl.Path())

	b, err := os.ReadFile(filepath.Join(dir, "gebrd-20240301.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(b))
	b, err = os.ReadFile(filepath.Join(dir, "gebrd-20240302.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(b))
}

func TestDatedLog_CloseTwice(t *testing.T) {
	dl, err := New(t.TempDir(), "x")
	require.NoError(t, err)
	assert.NoError(t, dl.Close())
	assert.NoError(t, dl.Close())
}
