package sharing

import (
	"math"
	"time"

	"snapnow/services/window"
)

// State is the single mutually exclusive state of a mounted session.
type State int

const (
	StateStarting State = iota
	StateWaitingForWindow
	StateInvalidSchedule
	StatePermissionDenied
	StateEnded
	StateUnsupported
	StateStopped
	StateSharing
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateWaitingForWindow:
		return "WaitingForWindow"
	case StateInvalidSchedule:
		return "InvalidSchedule"
	case StatePermissionDenied:
		return "PermissionDenied"
	case StateEnded:
		return "Ended"
	case StateUnsupported:
		return "Unsupported"
	case StateStopped:
		return "Stopped"
	case StateSharing:
		return "Sharing"
	default:
		return "Unknown"
	}
}

// Status is a snapshot handed to the owning UI.
type Status struct {
	State                 State
	MinutesUntilAvailable *int
	CurrentLocation       *Position
	// ErrorMessage is an inline, non-fatal problem such as a rejected submission.
	ErrorMessage string
	// Notice is a one-off informational message.
	Notice string
}

// machine holds the facts the state is derived from. It is only touched
// from the session's loop goroutine.
type machine struct {
	invalidSchedule bool
	localMinutes    *int
	serverOpensAt   time.Time
	serverMinutes   *int
	denied          bool
	hasEnded        bool
	noCapability    bool
	manuallyStopped bool
	watching        bool
	current         *Position
	errorMessage    string
	notice          string
}

func (m *machine) windowEvaluated(w window.Window, err error, now time.Time) {
	if err != nil {
		m.invalidSchedule = true
		m.localMinutes = nil
		m.errorMessage = "This booking's schedule could not be read"
		return
	}
	m.invalidSchedule = false
	if w.Open {
		m.localMinutes = nil
	} else if w.MinutesUntilAvailable != nil {
		v := *w.MinutesUntilAvailable
		m.localMinutes = &v
	}

	if !m.serverOpensAt.IsZero() {
		remaining := int(math.Ceil(m.serverOpensAt.Sub(now).Minutes()))
		if remaining <= 0 {
			m.serverOpensAt = time.Time{}
			m.serverMinutes = nil
		} else {
			m.serverMinutes = &remaining
		}
	}
}

func (m *machine) watchStarted() {
	m.watching = true
	m.manuallyStopped = false
	m.noCapability = false
	m.errorMessage = ""
}

func (m *machine) sampleReceived(p Position) {
	m.current = &p
}

func (m *machine) positionFailed(e *PositionError) {
	m.errorMessage = e.Error()
}

func (m *machine) permissionDenied() {
	m.denied = true
	m.errorMessage = "Location permission was denied. Enable it in your device settings to share your location."
}

// serverTooEarly records the server's own countdown. It wins over the
// local evaluation until it runs out or a submission succeeds.
func (m *machine) serverTooEarly(minutes int, now time.Time) {
	if minutes <= 0 {
		return
	}
	v := minutes
	m.serverMinutes = &v
	m.serverOpensAt = now.Add(time.Duration(minutes) * time.Minute)
	m.errorMessage = ""
}

func (m *machine) submissionFailed(msg string) {
	m.errorMessage = msg
}

func (m *machine) submissionSucceeded() {
	m.serverMinutes = nil
	m.serverOpensAt = time.Time{}
	m.errorMessage = ""
}

func (m *machine) stopped(manual bool) {
	m.watching = false
	m.current = nil
	if manual {
		m.manuallyStopped = true
	}
}

func (m *machine) unsupported() {
	m.noCapability = true
	m.notice = "Live location is not supported on this device"
}

func (m *machine) ended() {
	m.hasEnded = true
}

func (m *machine) minutesUntilAvailable() *int {
	if m.serverMinutes != nil {
		return m.serverMinutes
	}
	return m.localMinutes
}

func (m *machine) state() State {
	minutes := m.minutesUntilAvailable()
	switch {
	case m.invalidSchedule:
		return StateInvalidSchedule
	case minutes != nil && *minutes > 0:
		return StateWaitingForWindow
	case m.denied:
		return StatePermissionDenied
	case m.hasEnded:
		return StateEnded
	case m.noCapability:
		return StateUnsupported
	case m.manuallyStopped:
		return StateStopped
	case m.watching && m.current != nil:
		return StateSharing
	default:
		return StateStarting
	}
}

func (m *machine) snapshot() Status {
	st := Status{
		State:        m.state(),
		ErrorMessage: m.errorMessage,
		Notice:       m.notice,
	}
	if v := m.minutesUntilAvailable(); v != nil {
		n := *v
		st.MinutesUntilAvailable = &n
	}
	if m.current != nil {
		p := *m.current
		st.CurrentLocation = &p
	}
	return st
}

// sameStatus reports whether two snapshots would render identically.
func sameStatus(a, b Status) bool {
	if a.State != b.State || a.ErrorMessage != b.ErrorMessage || a.Notice != b.Notice {
		return false
	}
	if (a.MinutesUntilAvailable == nil) != (b.MinutesUntilAvailable == nil) {
		return false
	}
	if a.MinutesUntilAvailable != nil && *a.MinutesUntilAvailable != *b.MinutesUntilAvailable {
		return false
	}
	if (a.CurrentLocation == nil) != (b.CurrentLocation == nil) {
		return false
	}
	return a.CurrentLocation == nil || *a.CurrentLocation == *b.CurrentLocation
}
