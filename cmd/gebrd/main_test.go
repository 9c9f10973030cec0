package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gebrproject/gebr/internal/acct"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "gebrd.yaml"),
		[]byte("port: 3000\nserver_type: batch\nkeep_alive: true\n"), 0o644))

	opts := &options{}
	cmd := newDaemonCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--home", home, "--port", "4000"}))
	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "batch", cfg.ServerType)
	assert.True(t, cfg.KeepAlive)
	assert.Equal(t, filepath.Join(home, "gebrd.db"), cfg.AcctDB)
}

func TestLoadConfig_InvalidServerType(t *testing.T) {
	opts := &options{}
	cmd := newDaemonCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--home", t.TempDir(), "--server-type", "grid"}))
	_, err := loadConfig(cmd, opts)
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	home := t.TempDir()
	ac, err := acct.Open(filepath.Join(home, "gebrd.db"))
	require.NoError(t, err)
	ac.RecordDeleted("7", "ws1")
	ac.RecordRequeued("8", "j8", "qnight")
	require.NoError(t, ac.Close())

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--home", home, "history", "7"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), ";D;7;requestor=ws1\n")
	assert.NotContains(t, out.String(), ";R;8;")
}
