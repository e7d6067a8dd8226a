// Package repository implements the conversation event store on a single
// DynamoDB table.
//
// Raw events and their derived flattened summaries share the table. Events
// sort under a timestamp-encoded range key so a plain Query returns them in
// chronological order; the secondary indexes declared by EnsureSchema cover
// the analytics query shapes. Writes are incremental: Save persists only
// the suffix of the engine's full history that is not yet stored.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"conversation-tracker/internal/domain"
)

const (
	pkPrefix       = "CONV#"
	skEventPrefix  = "EVT#"
	skEventCeiling = "EVT$" // '$' is the byte after '#'
	skFlatPrefix   = "FLAT#"

	recordTypeEvent     = "event"
	recordTypeFlattened = "flattened"

	// Legacy deployments keyed numeric conversation ids with a
	// fixed-width rendering. See migrate.go.
	legacyPKFormat = pkPrefix + "%019d"

	// TransactWriteItems accepts at most 100 items per call.
	maxTransactItems = 100
)

// ErrNotFound reports that a key has no stored events in the requested
// window. Callers distinguish it from an empty result on purpose: absence
// is what triggers the legacy numeric-key migration.
var ErrNotFound = errors.New("repository: conversation not found")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Client wraps a DynamoDB table holding conversation event logs.
//
// Reads are safe concurrently; writes to one conversation must be
// serialized by the caller (single writer per conversation). The store does
// not take locks of its own.
type Client struct {
	api       dynamodbAPI
	tableName string
	log       *slog.Logger
}

// New creates a store Client over the given table.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, log: slog.Default()}, nil
}

// convPK returns the partition key for a canonical conversation key.
func convPK(senderID string) string {
	return pkPrefix + senderID
}

// eventSK returns the range key for an event. The zero-padded timestamp
// keeps lexicographic order equal to numeric order; the global sequence
// number breaks ties between events sharing a timestamp.
func eventSK(ts float64, seq int) string {
	return fmt.Sprintf("%s%017.6f#%09d", skEventPrefix, ts, seq)
}

// eventSKFloor returns the smallest range key at or after the given
// timestamp, used as the inclusive lower bound of a session window.
func eventSKFloor(ts float64) string {
	return fmt.Sprintf("%s%017.6f", skEventPrefix, ts)
}

// queryAll drains a Query across pages.
func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// transactChunks executes puts-and-deletes in transaction-sized chunks.
// Atomicity holds within one chunk, not across chunks.
func (c *Client) transactChunks(ctx context.Context, items []types.TransactWriteItem) error {
	for len(items) > 0 {
		n := len(items)
		if n > maxTransactItems {
			n = maxTransactItems
		}
		_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[:n],
		})
		if err != nil {
			return err
		}
		items = items[n:]
	}
	return nil
}

// eventItem is the persisted shape of one raw event. The payload is stored
// verbatim; the scalar attributes beside it exist for the index key shapes.
type eventItem struct {
	PK             string  `dynamodbav:"PK"`
	SK             string  `dynamodbav:"SK"`
	SenderID       string  `dynamodbav:"sender_id"`
	ConversationID string  `dynamodbav:"conversation_id"`
	RecordType     string  `dynamodbav:"record_type"`
	EventType      string  `dynamodbav:"event_type"`
	EventName      string  `dynamodbav:"event_name,omitempty"`
	EventTimestamp float64 `dynamodbav:"event_timestamp"`
	Payload        string  `dynamodbav:"payload"`
}

// flattenedItem is the persisted shape of a per-turn summary.
type flattenedItem struct {
	PK               string   `dynamodbav:"PK"`
	SK               string   `dynamodbav:"SK"`
	SenderID         string   `dynamodbav:"sender_id"`
	ConversationID   string   `dynamodbav:"conversation_id"`
	RecordType       string   `dynamodbav:"record_type"`
	EventTimestamp   float64  `dynamodbav:"event_timestamp"`
	UserInput        string   `dynamodbav:"user_input"`
	IntentName       string   `dynamodbav:"intent_name"`
	IntentConfidence float64  `dynamodbav:"intent_confidence"`
	ActionNames      []string `dynamodbav:"action_names"`
	BotResponses     string   `dynamodbav:"bot_responses"` // JSON array
}

// parseEventItem turns a stored item back into its domain event.
func parseEventItem(item map[string]types.AttributeValue) (domain.Event, error) {
	payload, ok := item["payload"]
	if !ok {
		return nil, errors.New("repository: item missing payload")
	}
	s, ok := payload.(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("repository: payload is not a string")
	}
	ev, err := domain.ParseEvent([]byte(s.Value))
	if err != nil {
		return nil, fmt.Errorf("repository: decode stored payload: %w", err)
	}
	return ev, nil
}
