package domain

import (
	"encoding/json"
	"fmt"
)

// Event type tags the store inspects. Every other tag is passed through
// opaquely as a GenericEvent.
const (
	TypeUser           = "user"
	TypeBot            = "bot"
	TypeAction         = "action"
	TypeSessionStarted = "session_started"
)

// Event is one immutable, timestamped entry in a conversation's history.
// The store only understands the four tags above; the full payload travels
// with the event so unknown fields survive a save/retrieve round trip
// byte-for-byte.
type Event interface {
	// Kind returns the payload's event type tag.
	Kind() string
	// OccurredAt returns the event timestamp in seconds since the epoch.
	OccurredAt() float64
	// Payload returns the engine's payload as it arrived. Events built in
	// process (rather than parsed) synthesize a minimal payload.
	Payload() json.RawMessage
}

// UserEvent is a user utterance with the recognized intent.
type UserEvent struct {
	Timestamp  float64
	Text       string
	IntentName string
	Confidence float64
	Raw        json.RawMessage
}

func (e UserEvent) Kind() string        { return TypeUser }
func (e UserEvent) OccurredAt() float64 { return e.Timestamp }

func (e UserEvent) Payload() json.RawMessage {
	if e.Raw != nil {
		return e.Raw
	}
	return mustEncode(map[string]any{
		"event":     TypeUser,
		"timestamp": e.Timestamp,
		"text":      e.Text,
		"parse_data": map[string]any{
			"intent": map[string]any{"name": e.IntentName, "confidence": e.Confidence},
		},
	})
}

// BotEvent is an utterance sent by the bot, with channel-specific
// auxiliary data left opaque.
type BotEvent struct {
	Timestamp float64
	Text      string
	Data      json.RawMessage
	Raw       json.RawMessage
}

func (e BotEvent) Kind() string        { return TypeBot }
func (e BotEvent) OccurredAt() float64 { return e.Timestamp }

func (e BotEvent) Payload() json.RawMessage {
	if e.Raw != nil {
		return e.Raw
	}
	m := map[string]any{"event": TypeBot, "timestamp": e.Timestamp, "text": e.Text}
	if len(e.Data) > 0 {
		m["data"] = json.RawMessage(e.Data)
	}
	return mustEncode(m)
}

// ActionEvent records the engine executing a named action.
type ActionEvent struct {
	Timestamp float64
	Name      string
	Raw       json.RawMessage
}

func (e ActionEvent) Kind() string        { return TypeAction }
func (e ActionEvent) OccurredAt() float64 { return e.Timestamp }

func (e ActionEvent) Payload() json.RawMessage {
	if e.Raw != nil {
		return e.Raw
	}
	return mustEncode(map[string]any{"event": TypeAction, "timestamp": e.Timestamp, "name": e.Name})
}

// SessionStarted marks a session boundary. Session-scoped reads start at
// the latest marker and never return the marker itself.
type SessionStarted struct {
	Timestamp float64
	Raw       json.RawMessage
}

func (e SessionStarted) Kind() string        { return TypeSessionStarted }
func (e SessionStarted) OccurredAt() float64 { return e.Timestamp }

func (e SessionStarted) Payload() json.RawMessage {
	if e.Raw != nil {
		return e.Raw
	}
	return mustEncode(map[string]any{"event": TypeSessionStarted, "timestamp": e.Timestamp})
}

// GenericEvent is the catch-all variant for tags the store does not
// interpret (slot sets, followups, restarts, ...). The payload is preserved
// untouched.
type GenericEvent struct {
	Type      string
	Timestamp float64
	Raw       json.RawMessage
}

func (e GenericEvent) Kind() string        { return e.Type }
func (e GenericEvent) OccurredAt() float64 { return e.Timestamp }

func (e GenericEvent) Payload() json.RawMessage {
	if e.Raw != nil {
		return e.Raw
	}
	return mustEncode(map[string]any{"event": e.Type, "timestamp": e.Timestamp})
}

// eventEnvelope is the subset of payload fields the store reads.
type eventEnvelope struct {
	Event     string          `json:"event"`
	Timestamp float64         `json:"timestamp"`
	Text      string          `json:"text"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	ParseData struct {
		Intent struct {
			Name       string  `json:"name"`
			Confidence float64 `json:"confidence"`
		} `json:"intent"`
	} `json:"parse_data"`
}

// ParseEvent decodes one engine payload into its variant. The original
// bytes are retained on the returned event.
func ParseEvent(raw json.RawMessage) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("domain: parse event: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("domain: parse event: missing event tag")
	}

	switch env.Event {
	case TypeUser:
		return UserEvent{
			Timestamp:  env.Timestamp,
			Text:       env.Text,
			IntentName: env.ParseData.Intent.Name,
			Confidence: env.ParseData.Intent.Confidence,
			Raw:        raw,
		}, nil
	case TypeBot:
		return BotEvent{Timestamp: env.Timestamp, Text: env.Text, Data: env.Data, Raw: raw}, nil
	case TypeAction:
		return ActionEvent{Timestamp: env.Timestamp, Name: env.Name, Raw: raw}, nil
	case TypeSessionStarted:
		return SessionStarted{Timestamp: env.Timestamp, Raw: raw}, nil
	default:
		return GenericEvent{Type: env.Event, Timestamp: env.Timestamp, Raw: raw}, nil
	}
}

// ParseSequence decodes an ordered list of engine payloads.
func ParseSequence(raws []json.RawMessage) ([]Event, error) {
	events := make([]Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := ParseEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("domain: event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// EventName returns the action name for action events and "" otherwise.
// Used for the name-keyed index attribute.
func EventName(ev Event) string {
	if a, ok := ev.(ActionEvent); ok {
		return a.Name
	}
	return ""
}

func mustEncode(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reachable with map values that cannot marshal; the shapes
		// above are all plain scalars and maps.
		panic(fmt.Sprintf("domain: encode event payload: %v", err))
	}
	return b
}
