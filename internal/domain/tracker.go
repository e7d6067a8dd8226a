package domain

// Tracker is the reconstructed state of one conversation: its key and the
// ordered event sequence the requested window contains. The dialogue
// engine's richer session-state model is rebuilt on its side from exactly
// this sequence.
type Tracker struct {
	SenderID string
	Events   []Event
}

// Len returns the number of events in the window.
func (t *Tracker) Len() int { return len(t.Events) }

// LatestUserEvent returns the most recent user event in the window, if any.
func (t *Tracker) LatestUserEvent() (UserEvent, bool) {
	for i := len(t.Events) - 1; i >= 0; i-- {
		if u, ok := t.Events[i].(UserEvent); ok {
			return u, true
		}
	}
	return UserEvent{}, false
}

// Payloads returns the window's event payloads in order, ready to hand back
// to the engine.
func (t *Tracker) Payloads() [][]byte {
	out := make([][]byte, len(t.Events))
	for i, ev := range t.Events {
		out[i] = ev.Payload()
	}
	return out
}
