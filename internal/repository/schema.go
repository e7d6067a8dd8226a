package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Secondary indexes backing the store's query shapes. Descending reads are
// a query-time option, so the "timestamp desc" shapes share these
// declarations; the bare timestamp shape folds into type-timestamp-index
// because a global index needs a partition key and record_type partitions
// the same scan.
const (
	indexSenderEvent        = "sender-event-index"
	indexTypeTimestamp      = "type-timestamp-index"
	indexSenderConversation = "sender-conversation-index"
	indexEventTimestamp     = "event-timestamp-index"
	indexNameTimestamp      = "name-timestamp-index"
)

const schemaWaitTimeout = 2 * time.Minute

// EnsureSchema creates the event table and its secondary indexes if they do
// not exist yet and waits until the table is usable. Safe to run on every
// construction; an existing table is left untouched.
func (c *Client) EnsureSchema(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("repository: EnsureSchema describe table: %w", err)
	}

	_, err = c.api.CreateTable(ctx, c.createTableInput())
	if err != nil {
		// A concurrent initializer may have won the race.
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("repository: EnsureSchema create table: %w", err)
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	}, schemaWaitTimeout); err != nil {
		return fmt.Errorf("repository: EnsureSchema wait for table: %w", err)
	}
	c.log.Info("created event table", "table", c.tableName)
	return nil
}

func (c *Client) createTableInput() *dynamodb.CreateTableInput {
	stringAttr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		}
	}
	numberAttr := func(name string) types.AttributeDefinition {
		return types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeN,
		}
	}
	gsi := func(name, hashKey, rangeKey string) types.GlobalSecondaryIndex {
		return types.GlobalSecondaryIndex{
			IndexName: aws.String(name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}
	}

	return &dynamodb.CreateTableInput{
		TableName:   aws.String(c.tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttr("PK"),
			stringAttr("SK"),
			stringAttr("sender_id"),
			stringAttr("conversation_id"),
			stringAttr("record_type"),
			stringAttr("event_type"),
			stringAttr("event_name"),
			numberAttr("event_timestamp"),
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			gsi(indexSenderEvent, "sender_id", "event_type"),
			gsi(indexTypeTimestamp, "record_type", "event_timestamp"),
			gsi(indexSenderConversation, "sender_id", "conversation_id"),
			gsi(indexEventTimestamp, "event_type", "event_timestamp"),
			gsi(indexNameTimestamp, "event_name", "event_timestamp"),
		},
	}
}
