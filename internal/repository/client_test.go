package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// fakeDynamo serves queued outputs and records every input, shared by the
// package's tests.
type fakeDynamo struct {
	queryOuts   []*dynamodb.QueryOutput
	queryErr    error
	scanOuts    []*dynamodb.ScanOutput
	scanErr     error
	txErr       error
	describeOut *dynamodb.DescribeTableOutput
	describeErr error
	createErr   error

	queryIns    []*dynamodb.QueryInput
	scanIns     []*dynamodb.ScanInput
	txIns       []*dynamodb.TransactWriteItemsInput
	describeIns []*dynamodb.DescribeTableInput
	createIns   []*dynamodb.CreateTableInput
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryIns = append(f.queryIns, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryOuts) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanIns = append(f.scanIns, in)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if len(f.scanOuts) == 0 {
		return &dynamodb.ScanOutput{}, nil
	}
	out := f.scanOuts[0]
	f.scanOuts = f.scanOuts[1:]
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.txIns = append(f.txIns, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.describeIns = append(f.describeIns, in)
	// Once CreateTable has been attempted the table reads as active, so
	// the schema waiter terminates.
	if f.describeErr != nil && len(f.createIns) > 0 {
		return &dynamodb.DescribeTableOutput{
			Table: &types.TableDescription{TableStatus: types.TableStatusActive},
		}, nil
	}
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.describeOut != nil {
		return f.describeOut, nil
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableStatus: types.TableStatusActive},
	}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.createIns = append(f.createIns, in)
	return &dynamodb.CreateTableOutput{}, f.createErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "conversations")
	require.NoError(t, err)
	return c
}

// userPayload builds an engine user-event payload.
func userPayload(ts float64, text, intent string, confidence float64) string {
	return fmt.Sprintf(
		`{"event":"user","timestamp":%g,"text":%q,"parse_data":{"intent":{"name":%q,"confidence":%g}}}`,
		ts, text, intent, confidence)
}

func actionPayload(ts float64, name string) string {
	return fmt.Sprintf(`{"event":"action","timestamp":%g,"name":%q}`, ts, name)
}

func botPayload(ts float64, text string) string {
	return fmt.Sprintf(`{"event":"bot","timestamp":%g,"text":%q,"data":{"elements":null}}`, ts, text)
}

func sessionStartPayload(ts float64) string {
	return fmt.Sprintf(`{"event":"session_started","timestamp":%g}`, ts)
}

// storedEvent builds the persisted item for one event payload.
func storedEvent(senderID string, ts float64, seq int, eventType, payload string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: convPK(senderID)},
		"SK":              &types.AttributeValueMemberS{Value: eventSK(ts, seq)},
		"sender_id":       &types.AttributeValueMemberS{Value: senderID},
		"record_type":     &types.AttributeValueMemberS{Value: recordTypeEvent},
		"event_type":      &types.AttributeValueMemberS{Value: eventType},
		"event_timestamp": &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", ts)},
		"payload":         &types.AttributeValueMemberS{Value: payload},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "conversations")
	require.Error(t, err)

	_, err = New(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestEventSK_OrdersByTimestampThenSequence(t *testing.T) {
	a := eventSK(9.5, 0)
	b := eventSK(10.25, 1)
	c := eventSK(10.25, 2)
	d := eventSK(1700000000.000001, 3)
	require.Less(t, a, b)
	require.Less(t, b, c)
	require.Less(t, c, d)
	require.Less(t, d, skEventCeiling)
	require.Less(t, eventSKFloor(10.25), b)
}

func TestParseEventItem_RoundTripsPayload(t *testing.T) {
	payload := userPayload(12.5, "hello", "greet", 0.91)
	ev, err := parseEventItem(storedEvent("alice", 12.5, 0, "user", payload))
	require.NoError(t, err)
	require.Equal(t, "user", ev.Kind())
	require.JSONEq(t, payload, string(ev.Payload()))
}

func TestParseEventItem_Malformed(t *testing.T) {
	_, err := parseEventItem(map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "CONV#alice"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing payload")

	_, err = parseEventItem(map[string]types.AttributeValue{
		"payload": &types.AttributeValueMemberN{Value: "3"},
	})
	require.Error(t, err)
}

func requireJSONField(t *testing.T, raw json.RawMessage, field string) any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	v, ok := m[field]
	require.True(t, ok, "field %q missing", field)
	return v
}
