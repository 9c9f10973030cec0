//go:build linux

package hostinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProc(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestProcProber(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, map[string]string{
		"sys/kernel/ostype":    "Linux\n",
		"sys/kernel/osrelease": "6.1.0-test\n",
		"loadavg":              "0.75 0.50 0.25 1/123 4567\n",
		"uptime":               "3600.50 7000.00\n",
		"meminfo": "MemTotal:       16384000 kB\n" +
			"MemFree:         1000000 kB\n" +
			"MemAvailable:    8192000 kB\n",
		"cpuinfo": "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Test CPU @ 3.00GHz\n",
	})

	info, err := ProcProber{Root: root}.Probe()
	require.NoError(t, err)
	assert.Equal(t, "Linux", info.OS)
	assert.Equal(t, "6.1.0-test", info.Release)
	assert.InDelta(t, 0.75, info.LoadAvg, 1e-9)
	assert.Equal(t, 3600*time.Second+500*time.Millisecond, info.Uptime)
	assert.Equal(t, int64(16384000), info.MemTotalKB)
	assert.Equal(t, int64(8192000), info.MemAvailKB)
	assert.Equal(t, "Test CPU @ 3.00GHz", info.CPUModel)
	assert.Positive(t, info.NCPU)
}

func TestProcProber_MissingMeminfo(t *testing.T) {
	_, err := ProcProber{Root: t.TempDir()}.Probe()
	assert.Error(t, err)
}

func TestProcProber_MissingOptionalFiles(t *testing.T) {
	root := t.TempDir()
	writeProc(t, root, map[string]string{"meminfo": "MemTotal: 1024 kB\n"})

	info, err := ProcProber{Root: root}.Probe()
	require.NoError(t, err)
	assert.Equal(t, "linux", info.OS)
	assert.Empty(t, info.CPUModel)
	assert.Zero(t, info.LoadAvg)
	assert.Equal(t, int64(1024), info.MemTotalKB)
}
