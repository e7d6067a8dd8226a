package domain

// SessionWindow scopes a history read. The zero value is the unbounded
// full-history window.
//
// A session-scoped window always excludes session_started markers from its
// results, whether or not a marker was found to bound it.
type SessionWindow struct {
	// CurrentOnly restricts the read to the active session.
	CurrentOnly bool
	// Start is the inclusive lower timestamp bound, valid when HasStart.
	Start    float64
	HasStart bool
}

// FullHistory returns the unbounded window.
func FullHistory() SessionWindow { return SessionWindow{} }

// SessionSince returns a session window starting at the given marker
// timestamp, inclusive.
func SessionSince(ts float64) SessionWindow {
	return SessionWindow{CurrentOnly: true, Start: ts, HasStart: true}
}

// UnboundedSession returns a session-scoped window for a conversation with
// no session_started marker: no lower bound, markers still excluded.
func UnboundedSession() SessionWindow { return SessionWindow{CurrentOnly: true} }
