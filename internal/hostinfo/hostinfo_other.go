//go:build !linux

package hostinfo

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

type genericProber struct{}

// New returns the prober for this platform.
func New() Prober { return genericProber{} }

func (genericProber) Probe() (*Info, error) {
	info := &Info{
		Arch: runtime.GOARCH,
		OS:   runtime.GOOS,
		NCPU: runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()
	if runtime.GOOS != "darwin" {
		return info, nil
	}
	if val := sysctl("hw.memsize"); val != "" {
		n, _ := strconv.ParseInt(val, 10, 64)
		info.MemTotalKB = n / 1024
	}
	if fields := strings.Fields(strings.Trim(sysctl("vm.loadavg"), "{ }")); len(fields) > 0 {
		info.LoadAvg, _ = strconv.ParseFloat(fields[0], 64)
	}
	info.Release = sysctl("kern.osrelease")
	info.CPUModel = sysctl("machdep.cpu.brand_string")
	return info, nil
}

func sysctl(name string) string {
	out, err := exec.Command("sysctl", "-n", name).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
