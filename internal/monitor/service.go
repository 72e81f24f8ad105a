package monitor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// serviceQueryTimeout bounds one "sc query" invocation so a hung service
// control manager cannot stall the polling loop.
const serviceQueryTimeout = 10 * time.Second

// ServiceProber queries the Windows service control manager via
// "sc query". The run hook is swappable for tests.
type ServiceProber struct {
	run func(ctx context.Context, serviceName string) ([]byte, error)
}

// NewServiceProber returns a prober backed by the real sc.exe.
func NewServiceProber() *ServiceProber {
	return &ServiceProber{run: runScQuery}
}

func runScQuery(ctx context.Context, serviceName string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sc", "query", serviceName)
	return cmd.CombinedOutput()
}

func (s *ServiceProber) Probe(ctx context.Context, item Item) Snapshot {
	qctx, cancel := context.WithTimeout(ctx, serviceQueryTimeout)
	defer cancel()

	out, err := s.run(qctx, item.ServiceName)
	text := string(out)

	if qctx.Err() != nil {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("sc query %s: %w", item.ServiceName, qctx.Err())}
	}
	if err != nil {
		// sc exits non-zero both for unknown services (1060) and for
		// access problems. Unknown service is a status, not a fault.
		if strings.Contains(text, "1060") || strings.Contains(text, "does not exist") {
			return Snapshot{Status: StatusNotFound}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Snapshot{Status: StatusError, Err: fmt.Errorf("sc query %s exited %d: %s", item.ServiceName, exitErr.ExitCode(), firstLine(text))}
		}
		return Snapshot{Status: StatusError, Err: fmt.Errorf("sc query %s: %w", item.ServiceName, err)}
	}

	status, ok := parseServiceState(text)
	if !ok {
		return Snapshot{Status: StatusError, Err: fmt.Errorf("sc query %s: no STATE line in output", item.ServiceName)}
	}
	return Snapshot{Status: status, Detail: map[string]string{"service": item.ServiceName}}
}

// parseServiceState extracts the service state from sc query output.
// The relevant line looks like "        STATE              : 4  RUNNING".
func parseServiceState(out string) (Status, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.EqualFold(fields[0], "STATE") {
			continue
		}
		switch fields[len(fields)-1] {
		case "RUNNING":
			return StatusRunning, true
		case "STOPPED":
			return StatusStopped, true
		case "START_PENDING", "CONTINUE_PENDING":
			return StatusStartPending, true
		case "STOP_PENDING", "PAUSE_PENDING":
			return StatusStopPending, true
		case "PAUSED":
			return StatusPaused, true
		}
	}
	return "", false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
