package monitor

import (
	"context"
	"errors"
	"testing"
)

const scRunningOutput = `
SERVICE_NAME: Spooler
        TYPE               : 110  WIN32_OWN_PROCESS (interactive)
        STATE              : 4  RUNNING
                                (STOPPABLE, NOT_PAUSABLE, ACCEPTS_SHUTDOWN)
        WIN32_EXIT_CODE    : 0  (0x0)
`

const scStoppedOutput = `
SERVICE_NAME: Spooler
        TYPE               : 110  WIN32_OWN_PROCESS (interactive)
        STATE              : 1  STOPPED
        WIN32_EXIT_CODE    : 0  (0x0)
`

const scNotFoundOutput = `[SC] EnumQueryServicesStatus:OpenService FAILED 1060:

The specified service does not exist as an installed service.
`

func fakeServiceProber(out string, err error) *ServiceProber {
	return &ServiceProber{
		run: func(ctx context.Context, name string) ([]byte, error) {
			return []byte(out), err
		},
	}
}

func serviceItem() Item {
	item := portItem(1)
	item.Class = ClassService
	item.Port = 0
	item.ServiceName = "Spooler"
	return item
}

func TestParseServiceState(t *testing.T) {
	cases := []struct {
		line   string
		want   Status
		wantOK bool
	}{
		{"  STATE  : 4  RUNNING", StatusRunning, true},
		{"  STATE  : 1  STOPPED", StatusStopped, true},
		{"  STATE  : 2  START_PENDING", StatusStartPending, true},
		{"  STATE  : 3  STOP_PENDING", StatusStopPending, true},
		{"  STATE  : 7  PAUSED", StatusPaused, true},
		{"  STATE  : 6  PAUSE_PENDING", StatusStopPending, true},
		{"no state here", "", false},
	}

	for _, tc := range cases {
		got, ok := parseServiceState(tc.line)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("parseServiceState(%q) = (%q, %v), want (%q, %v)",
				tc.line, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestServiceProber_Running(t *testing.T) {
	p := fakeServiceProber(scRunningOutput, nil)

	snap := p.Probe(context.Background(), serviceItem())
	if snap.Status != StatusRunning {
		t.Errorf("Status = %s, want running", snap.Status)
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
}

func TestServiceProber_Stopped(t *testing.T) {
	p := fakeServiceProber(scStoppedOutput, nil)

	snap := p.Probe(context.Background(), serviceItem())
	if snap.Status != StatusStopped {
		t.Errorf("Status = %s, want stopped", snap.Status)
	}
}

func TestServiceProber_UnknownServiceIsNotFound(t *testing.T) {
	p := fakeServiceProber(scNotFoundOutput, errors.New("exit status 1060"))

	snap := p.Probe(context.Background(), serviceItem())
	if snap.Status != StatusNotFound {
		t.Errorf("Status = %s, want not_found", snap.Status)
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil: unknown service is a status, not a fault", snap.Err)
	}
}

func TestServiceProber_QueryFailureIsErrorStatus(t *testing.T) {
	p := fakeServiceProber("", errors.New("sc not on PATH"))

	snap := p.Probe(context.Background(), serviceItem())
	if snap.Status != StatusError {
		t.Errorf("Status = %s, want error", snap.Status)
	}
	if snap.Err == nil {
		t.Error("Err = nil, want the query failure")
	}
}

func TestServiceProber_GarbledOutput(t *testing.T) {
	p := fakeServiceProber("something unexpected", nil)

	snap := p.Probe(context.Background(), serviceItem())
	if snap.Status != StatusError {
		t.Errorf("Status = %s, want error for unparseable output", snap.Status)
	}
}
