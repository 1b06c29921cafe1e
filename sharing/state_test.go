package sharing

import (
	"testing"
	"time"

	"snapnow/services/window"
)

func minutes(n int) *int { return &n }

func TestMachineStatePriority(t *testing.T) {
	now := time.Date(2026, 10, 16, 13, 52, 0, 0, time.UTC)
	pos := Position{Lat: 1, Lng: 2}

	cases := []struct {
		name string
		set  func(m *machine)
		want State
	}{
		{"fresh", func(m *machine) {}, StateStarting},
		{"sharing", func(m *machine) { m.watchStarted(); m.sampleReceived(pos) }, StateSharing},
		{"watch without fix", func(m *machine) { m.watchStarted() }, StateStarting},
		{"waiting beats denial", func(m *machine) {
			m.permissionDenied()
			m.windowEvaluated(window.Window{MinutesUntilAvailable: minutes(5)}, nil, now)
		}, StateWaitingForWindow},
		{"invalid beats everything", func(m *machine) {
			m.permissionDenied()
			m.windowEvaluated(window.Window{}, window.ErrInvalidSchedule, now)
		}, StateInvalidSchedule},
		{"denied beats ended", func(m *machine) { m.ended(); m.permissionDenied() }, StatePermissionDenied},
		{"ended beats unsupported", func(m *machine) { m.unsupported(); m.ended() }, StateEnded},
		{"manual stop", func(m *machine) {
			m.watchStarted()
			m.sampleReceived(pos)
			m.stopped(true)
		}, StateStopped},
		{"server countdown beats sharing", func(m *machine) {
			m.watchStarted()
			m.sampleReceived(pos)
			m.serverTooEarly(3, now)
		}, StateWaitingForWindow},
	}
	for _, tc := range cases {
		m := &machine{}
		tc.set(m)
		if got := m.state(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestServerCountdownRunsOut(t *testing.T) {
	now := time.Date(2026, 10, 16, 13, 52, 0, 0, time.UTC)
	m := &machine{}
	open := window.Window{Open: true}

	m.serverTooEarly(2, now)
	m.windowEvaluated(open, nil, now.Add(30*time.Second))
	if v := m.minutesUntilAvailable(); v == nil || *v != 2 {
		t.Fatalf("expected 2 minutes left, got %v", v)
	}
	m.windowEvaluated(open, nil, now.Add(2*time.Minute))
	if v := m.minutesUntilAvailable(); v != nil {
		t.Fatalf("expected server countdown to clear, got %d", *v)
	}
	if m.state() != StateStarting {
		t.Fatalf("expected Starting, got %v", m.state())
	}
}

func TestStoppedClearsLocation(t *testing.T) {
	m := &machine{}
	m.watchStarted()
	m.sampleReceived(Position{Lat: 1})
	m.stopped(false)
	if st := m.snapshot(); st.CurrentLocation != nil || st.State != StateStarting {
		t.Fatalf("unexpected snapshot %+v", st)
	}
}
