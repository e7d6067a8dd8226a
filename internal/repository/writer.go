package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"conversation-tracker/internal/domain"
)

// Save appends the not-yet-persisted suffix of the engine's full event
// history, together with at most one flattened turn summary, in one
// transactional batch. It returns how many raw events were appended; zero
// means the store was already up to date.
//
// Preconditions (caller-owned, not checked here): events is always the
// complete history for the key, earlier calls' events never truncated or
// reordered, and only one writer is active per conversation. The suffix is
// found by comparing lengths, so a violated precondition silently drops or
// duplicates events rather than failing.
func (c *Client) Save(ctx context.Context, senderID string, events []domain.Event) (int, error) {
	count, err := c.storedEventCount(ctx, senderID)
	if err != nil {
		return 0, fmt.Errorf("repository: Save count stored events: %w", err)
	}
	if count >= len(events) {
		return 0, nil
	}
	suffix := events[count:]

	// One fresh id groups the batch's raw events with the flattened
	// summary derived from them.
	batchID := uuid.NewString()

	writes := make([]types.TransactWriteItem, 0, len(suffix)+1)
	for i, ev := range suffix {
		item, err := marshalEvent(senderID, batchID, ev, count+i)
		if err != nil {
			return 0, fmt.Errorf("repository: Save: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(c.tableName), Item: item},
		})
	}

	if turn, ok := flattenBatch(senderID, batchID, suffix); ok {
		item, err := marshalFlattened(turn)
		if err != nil {
			return 0, fmt.Errorf("repository: Save: %w", err)
		}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(c.tableName), Item: item},
		})
	}

	if err := c.transactChunks(ctx, writes); err != nil {
		return 0, fmt.Errorf("repository: Save write batch: %w", err)
	}
	c.log.Debug("appended event suffix",
		"sender_id", senderID, "stored", count, "appended", len(suffix))
	return len(suffix), nil
}

// flattenBatch derives the per-turn summary from one write batch. A batch
// without a user event produces no summary. The first user event supplies
// the utterance, intent and timestamp; action names and bot responses
// accumulate in encounter order.
func flattenBatch(senderID, batchID string, batch []domain.Event) (domain.FlattenedTurn, bool) {
	turn := domain.FlattenedTurn{SenderID: senderID, TurnID: batchID}
	sawUser := false

	for _, ev := range batch {
		switch e := ev.(type) {
		case domain.UserEvent:
			if sawUser {
				continue
			}
			sawUser = true
			turn.Timestamp = e.Timestamp
			turn.UserInput = e.Text
			turn.IntentName = e.IntentName
			turn.Confidence = e.Confidence
		case domain.ActionEvent:
			turn.ActionNames = append(turn.ActionNames, e.Name)
		case domain.BotEvent:
			turn.BotResponses = append(turn.BotResponses, domain.BotResponse{
				Text: e.Text,
				Data: e.Data,
			})
		}
	}

	if !sawUser {
		return domain.FlattenedTurn{}, false
	}
	return turn, true
}

func marshalEvent(senderID, batchID string, ev domain.Event, seq int) (map[string]types.AttributeValue, error) {
	payload := ev.Payload()
	if len(payload) == 0 {
		return nil, errors.New("event has empty payload")
	}
	item := eventItem{
		PK:             convPK(senderID),
		SK:             eventSK(ev.OccurredAt(), seq),
		SenderID:       senderID,
		ConversationID: batchID,
		RecordType:     recordTypeEvent,
		EventType:      ev.Kind(),
		EventName:      domain.EventName(ev),
		EventTimestamp: ev.OccurredAt(),
		Payload:        string(payload),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal event item: %w", err)
	}
	return av, nil
}

func marshalFlattened(turn domain.FlattenedTurn) (map[string]types.AttributeValue, error) {
	responses, err := json.Marshal(turn.BotResponses)
	if err != nil {
		return nil, fmt.Errorf("marshal bot responses: %w", err)
	}
	item := flattenedItem{
		PK:               convPK(turn.SenderID),
		SK:               skFlatPrefix + turn.TurnID,
		SenderID:         turn.SenderID,
		ConversationID:   turn.TurnID,
		RecordType:       recordTypeFlattened,
		EventTimestamp:   turn.Timestamp,
		UserInput:        turn.UserInput,
		IntentName:       turn.IntentName,
		IntentConfidence: turn.Confidence,
		ActionNames:      turn.ActionNames,
		BotResponses:     string(responses),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("marshal flattened item: %w", err)
	}
	return av, nil
}
