package model

import "time"

// SessionEventKind enumerates credential lifecycle transitions.
type SessionEventKind int

const (
	// EventLoggedIn fires after a successful login stored a new credential.
	EventLoggedIn SessionEventKind = iota + 1
	// EventLoggedOut fires after an explicit logout cleared the credential.
	EventLoggedOut
	// EventExpired fires when refresh failed and the user must re-authenticate.
	EventExpired
)

func (k SessionEventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged_in"
	case EventLoggedOut:
		return "logged_out"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SessionEvent is emitted by the session manager to its observers.
type SessionEvent struct {
	Kind SessionEventKind
	At   time.Time
}

// SessionObserver receives session events.
type SessionObserver func(SessionEvent)
