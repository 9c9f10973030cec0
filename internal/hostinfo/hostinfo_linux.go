//go:build linux

package hostinfo

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ProcProber reads /proc. Root is the proc mount point, "/proc" when empty.
type ProcProber struct {
	Root string
}

// New returns the prober for this platform.
func New() Prober { return ProcProber{} }

func (p ProcProber) path(elem ...string) string {
	root := p.Root
	if root == "" {
		root = "/proc"
	}
	return filepath.Join(append([]string{root}, elem...)...)
}

func (p ProcProber) read(elem ...string) string {
	data, err := os.ReadFile(p.path(elem...))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (p ProcProber) Probe() (*Info, error) {
	info := &Info{
		Arch: runtime.GOARCH,
		NCPU: runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()
	info.OS = p.read("sys", "kernel", "ostype")
	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	info.Release = p.read("sys", "kernel", "osrelease")

	if fields := strings.Fields(p.read("loadavg")); len(fields) > 0 {
		info.LoadAvg, _ = strconv.ParseFloat(fields[0], 64)
	}
	if fields := strings.Fields(p.read("uptime")); len(fields) > 0 {
		secs, _ := strconv.ParseFloat(fields[0], 64)
		info.Uptime = time.Duration(secs * float64(time.Second))
	}

	f, err := os.Open(p.path("meminfo"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	parseMeminfo(f, info)

	if f, err := os.Open(p.path("cpuinfo")); err == nil {
		info.CPUModel = parseCPUModel(f)
		f.Close()
	}
	return info, nil
}

func parseMeminfo(r io.Reader, info *Info) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		val, _ := strconv.ParseInt(fields[1], 10, 64)
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			info.MemTotalKB = val
		case "MemAvailable":
			info.MemAvailKB = val
		}
	}
}

func parseCPUModel(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, val, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
