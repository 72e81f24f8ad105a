package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Prober observes one item and returns its current status. Probers must
// not panic and must honor ctx cancellation; a probe-level fault is
// reported through Snapshot.Err with StatusError, never as a Go error to
// the scheduler.
type Prober interface {
	Probe(ctx context.Context, item Item) Snapshot
}

// PortProber reports whether a local TCP port has a listener.
type PortProber struct{}

func (PortProber) Probe(ctx context.Context, item Item) Snapshot {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("list connections: %w", err)}
	}

	for _, c := range conns {
		if c.Status != "LISTEN" || int(c.Laddr.Port) != item.Port {
			continue
		}
		detail := map[string]string{
			"address": c.Laddr.IP,
			"pid":     strconv.FormatInt(int64(c.Pid), 10),
		}
		if c.Pid > 0 {
			if p, err := process.NewProcessWithContext(ctx, c.Pid); err == nil {
				if name, err := p.NameWithContext(ctx); err == nil {
					detail["process"] = name
				}
			}
		}
		return Snapshot{Status: StatusRunning, Detail: detail}
	}
	return Snapshot{Status: StatusStopped}
}

// ProcessProber reports whether a process exists, by PID or by name.
// A missing process is StatusStopped; PID reuse is mitigated by also
// matching the expected name when both are configured.
type ProcessProber struct{}

func (ProcessProber) Probe(ctx context.Context, item Item) Snapshot {
	if item.PID != 0 {
		return probeByPID(ctx, item)
	}
	return probeByName(ctx, item.ProcessName)
}

func probeByPID(ctx context.Context, item Item) Snapshot {
	p, err := process.NewProcessWithContext(ctx, item.PID)
	if err != nil {
		return Snapshot{Status: StatusStopped}
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("check pid %d: %w", item.PID, err)}
	}
	if !running {
		return Snapshot{Status: StatusStopped}
	}

	name, _ := p.NameWithContext(ctx)
	if item.ProcessName != "" && !strings.EqualFold(name, item.ProcessName) {
		// The PID is alive but belongs to someone else now.
		return Snapshot{Status: StatusStopped, Detail: map[string]string{"reused_by": name}}
	}
	return Snapshot{Status: StatusRunning, Detail: processDetail(ctx, p, name)}
}

func probeByName(ctx context.Context, name string) Snapshot {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("list processes: %w", err)}
	}
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(n, name) {
			return Snapshot{Status: StatusRunning, Detail: processDetail(ctx, p, n)}
		}
	}
	return Snapshot{Status: StatusStopped}
}

func processDetail(ctx context.Context, p *process.Process, name string) map[string]string {
	detail := map[string]string{
		"pid":  strconv.FormatInt(int64(p.Pid), 10),
		"name": name,
	}
	if pct, err := p.CPUPercentWithContext(ctx); err == nil {
		detail["cpu_percent"] = strconv.FormatFloat(pct, 'f', 1, 64)
	}
	if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
		detail["rss_bytes"] = strconv.FormatUint(m.RSS, 10)
	}
	return detail
}

// ResourceProber measures CPU, RAM, or disk utilization and compares it
// against the item's threshold. The status is StatusBreached or
// StatusNormal; the measured percentage is carried in Snapshot.Value.
type ResourceProber struct{}

func (ResourceProber) Probe(ctx context.Context, item Item) Snapshot {
	var (
		value float64
		err   error
	)

	switch item.Metric {
	case MetricCPU:
		var pcts []float64
		pcts, err = cpu.PercentWithContext(ctx, 0, false)
		if err == nil && len(pcts) > 0 {
			value = pcts[0]
		}
	case MetricRAM:
		var vm *mem.VirtualMemoryStat
		vm, err = mem.VirtualMemoryWithContext(ctx)
		if err == nil {
			value = vm.UsedPercent
		}
	case MetricDisk:
		var usage *disk.UsageStat
		usage, err = disk.UsageWithContext(ctx, drivePath(item.Drive))
		if err == nil {
			value = usage.UsedPercent
		}
	default:
		err = fmt.Errorf("unknown metric %q", item.Metric)
	}

	if err != nil {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("measure %s: %w", item.Metric, err)}
	}

	status := StatusNormal
	if value >= item.Threshold {
		status = StatusBreached
	}
	return Snapshot{
		Status: status,
		Value:  value,
		Detail: map[string]string{
			"value":     strconv.FormatFloat(value, 'f', 1, 64),
			"threshold": strconv.FormatFloat(item.Threshold, 'f', 1, 64),
		},
	}
}

// drivePath normalizes a Windows drive letter ("C") to a usable mount
// path ("C:\"). Paths that already look like mounts pass through.
func drivePath(drive string) string {
	d := strings.TrimSpace(drive)
	if len(d) == 1 {
		return d + `:\`
	}
	if len(d) == 2 && d[1] == ':' {
		return d + `\`
	}
	return d
}
