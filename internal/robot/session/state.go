package session

import (
	"time"
)

// State is the session lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Lost
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Lost:
		return "lost"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Change describes one observed state transition. Err is set when the
// transition was caused by a failure, such as session loss.
type Change struct {
	From State
	To   State
	At   time.Time
	Err  error
}

// Observer receives state changes. Observers are called one at a time in
// transition order and must return quickly; they must not call Connect or
// Disconnect.
type Observer func(Change)

// notifiable reports whether observers hear about transitions into s.
func notifiable(s State) bool {
	return s == Connected || s == Lost || s == Disconnected
}

// HealthSignal summarises the periodic liveness checks of the current
// session.
type HealthSignal struct {
	LastSuccess         time.Time
	ConsecutiveFailures int
}
