package repository

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"conversation-tracker/internal/domain"
)

// eventQuery describes one filter→sort read over a conversation's event
// records. Both the event reader and the session resolver build their
// queries through it so the window semantics live in one place.
type eventQuery struct {
	// partitionKey is the full PK value, canonical or legacy.
	partitionKey string
	// window bounds the read and, when session-scoped, drops
	// session_started markers from the results.
	window domain.SessionWindow
	// typeEquals restricts to one event type (used by the session
	// resolver to find markers); it overrides the window's marker
	// exclusion.
	typeEquals string
	// descending flips the sort so the newest event comes first.
	descending bool
}

// build compiles the query into a DynamoDB Query input. The key condition
// confines the read to event records (the EVT# range-key band), so
// flattened summaries never show up in history reads.
func (q eventQuery) build(tableName string) (*dynamodb.QueryInput, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(q.partitionKey))
	if q.window.HasStart {
		keyCond = keyCond.And(expression.Key("SK").Between(
			expression.Value(eventSKFloor(q.window.Start)),
			expression.Value(skEventCeiling),
		))
	} else {
		keyCond = keyCond.And(expression.Key("SK").BeginsWith(skEventPrefix))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)

	hasFilter := false
	switch {
	case q.typeEquals != "":
		builder = builder.WithFilter(
			expression.Name("event_type").Equal(expression.Value(q.typeEquals)))
		hasFilter = true
	case q.window.CurrentOnly:
		builder = builder.WithFilter(
			expression.Name("event_type").NotEqual(expression.Value(domain.TypeSessionStarted)))
		hasFilter = true
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("repository: build query expression: %w", err)
	}

	in := &dynamodb.QueryInput{
		TableName:                 aws.String(tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!q.descending),
	}
	if hasFilter {
		in.FilterExpression = expr.Filter()
	}
	return in, nil
}
