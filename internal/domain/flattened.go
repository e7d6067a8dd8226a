package domain

import "encoding/json"

// BotResponse is one bot utterance captured on a flattened turn: the text
// plus whatever auxiliary data the channel attached.
type BotResponse struct {
	Text string          `json:"text"`
	Data json.RawMessage `json:"data,omitempty"`
}

// FlattenedTurn is the denormalized per-turn summary derived from one write
// batch. It is a write-time projection: created once alongside the raw
// events it summarizes and never rebuilt from history.
type FlattenedTurn struct {
	SenderID string
	// TurnID is freshly generated for the batch; the batch's raw events
	// carry it as their conversation id.
	TurnID string
	// Timestamp, UserInput, IntentName and Confidence come from the first
	// user event in the batch.
	Timestamp  float64
	UserInput  string
	IntentName string
	Confidence float64
	// ActionNames and BotResponses accumulate in encounter order.
	ActionNames  []string
	BotResponses []BotResponse
}
