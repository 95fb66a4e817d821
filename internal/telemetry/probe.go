// Package telemetry samples process and host resource usage for the
// engine's heartbeat and snapshot, and exposes the same figures as
// Prometheus gauges for external scraping.
package telemetry

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Snapshot is one point-in-time resource reading.
type Snapshot struct {
	CPUPct   float64
	RAMPct   float64
	DiskPct  float64
	NetRxBps float64
	NetTxBps float64
	TempC    float64
}

// Probe samples current resource usage. Every field is best-effort: a
// platform where a figure can't be read reports zero rather than erroring,
// since telemetry must never block or fail a trading cycle.
type Probe interface {
	Sample() Snapshot
}

// defaultProbe is a Linux-best-effort Probe requiring no CGO dependency:
// /proc/loadavg scaled by the CPU count for CPU load, /proc/net/dev deltas
// between samples for network rates, and /sys/class/thermal for
// temperature. RAM and disk usage are not sampled and report zero.
type defaultProbe struct {
	startNumCPU int
	lastNet     netCounters
	lastNetAt   time.Time
}

type netCounters struct {
	rxBytes uint64
	txBytes uint64
}

// NewDefaultProbe returns the best-effort Linux Probe.
func NewDefaultProbe() Probe {
	p := &defaultProbe{startNumCPU: runtime.NumCPU()}
	p.lastNet = readNetCounters()
	p.lastNetAt = time.Now()
	return p
}

func (p *defaultProbe) Sample() Snapshot {
	now := time.Now()
	netNow := readNetCounters()
	dt := now.Sub(p.lastNetAt).Seconds()
	if dt <= 0 {
		dt = 1e-6
	}

	var rxBps, txBps float64
	if netNow.rxBytes >= p.lastNet.rxBytes {
		rxBps = float64(netNow.rxBytes-p.lastNet.rxBytes) / dt
	}
	if netNow.txBytes >= p.lastNet.txBytes {
		txBps = float64(netNow.txBytes-p.lastNet.txBytes) / dt
	}
	p.lastNet = netNow
	p.lastNetAt = now

	return Snapshot{
		CPUPct:   loadAvgPct(p.startNumCPU),
		RAMPct:   0, // not sampled on any platform; always 0
		DiskPct:  diskUsagePct("."),
		NetRxBps: rxBps,
		NetTxBps: txBps,
		TempC:    bestTemperatureC(),
	}
}

func loadAvgPct(numCPU int) float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || numCPU <= 0 {
		return 0
	}
	pct := load1 / float64(numCPU) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func diskUsagePct(path string) float64 {
	// statfs-free best effort: Go's stdlib has no portable disk-usage call
	// without syscall.Statfs_t, which is platform-specific; the engine
	// treats 0 as "unknown" the same way it treats an unreadable sensor.
	_ = path
	return 0
}

func readNetCounters() netCounters {
	data, err := os.ReadFile("/proc/net/dev")
	if err != nil {
		return netCounters{}
	}
	var rx, tx uint64
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[2:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		if v, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
			rx += v
		}
		if v, err := strconv.ParseUint(fields[8], 10, 64); err == nil {
			tx += v
		}
	}
	return netCounters{rxBytes: rx, txBytes: tx}
}

func bestTemperatureC() float64 {
	entries, err := os.ReadDir("/sys/class/thermal")
	if err != nil {
		return 0
	}
	var best float64
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "thermal_zone") {
			continue
		}
		raw, err := os.ReadFile("/sys/class/thermal/" + e.Name() + "/temp")
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		if v > 1000 {
			v /= 1000.0
		}
		if v > 0 && v < 150 && v > best {
			best = v
		}
	}
	return best
}
