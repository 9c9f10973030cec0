// Package hostinfo reports the load and capacity of the machine gebrd runs
// on. Clients use it to pick the least loaded server.
package hostinfo

import "time"

// Info is a point-in-time view of the host.
type Info struct {
	Hostname   string        `json:"hostname"`
	Arch       string        `json:"arch"`
	OS         string        `json:"os"`
	Release    string        `json:"release,omitempty"`
	CPUModel   string        `json:"cpu_model,omitempty"`
	NCPU       int           `json:"ncpu"`
	LoadAvg    float64       `json:"load_avg"`
	MemTotalKB int64         `json:"mem_total_kb"`
	MemAvailKB int64         `json:"mem_avail_kb"`
	Uptime     time.Duration `json:"uptime_ns"`
}

// Prober reads host information.
type Prober interface {
	Probe() (*Info, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func() (*Info, error)

func (f ProberFunc) Probe() (*Info, error) { return f() }
