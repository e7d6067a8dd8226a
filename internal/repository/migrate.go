package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsNumericKey reports whether an identifier could have been written under
// the legacy numeric key format.
func IsNumericKey(senderID string) bool {
	if senderID == "" {
		return false
	}
	for _, r := range senderID {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// legacyPK renders the partition key an old deployment used for a numeric
// conversation id.
func legacyPK(id int64) string {
	return fmt.Sprintf(legacyPKFormat, id)
}

// MigrateLegacyKey rewrites every record stored under the legacy numeric
// rendering of senderID to the canonical string key. Each record is moved,
// not copied: the rewrite puts the canonical item and deletes the legacy
// one in the same transaction. Finding no legacy records is success.
//
// The rewrite is best effort. A writer racing it under the legacy key wins;
// its rows are picked up by the next migration attempt.
func (c *Client) MigrateLegacyKey(ctx context.Context, senderID string) (int, error) {
	id, err := strconv.ParseInt(senderID, 10, 64)
	if err != nil {
		// Not representable as a legacy key, nothing to migrate.
		return 0, nil
	}

	keyCond := expression.Key("PK").Equal(expression.Value(legacyPK(id)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, fmt.Errorf("repository: MigrateLegacyKey build query: %w", err)
	}

	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(c.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return 0, fmt.Errorf("repository: MigrateLegacyKey query: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	writes := make([]types.TransactWriteItem, 0, 2*len(items))
	for _, item := range items {
		oldKey := map[string]types.AttributeValue{
			"PK": item["PK"],
			"SK": item["SK"],
		}

		moved := make(map[string]types.AttributeValue, len(item))
		for k, v := range item {
			moved[k] = v
		}
		moved["PK"] = &types.AttributeValueMemberS{Value: convPK(senderID)}
		// Legacy rows stored sender_id as a number, which also kept them
		// out of the string-keyed indexes. Stringify on the way over.
		moved["sender_id"] = &types.AttributeValueMemberS{Value: senderID}

		writes = append(writes,
			types.TransactWriteItem{
				Put: &types.Put{TableName: aws.String(c.tableName), Item: moved},
			},
			types.TransactWriteItem{
				Delete: &types.Delete{TableName: aws.String(c.tableName), Key: oldKey},
			},
		)
	}

	if err := c.transactChunks(ctx, writes); err != nil {
		return 0, fmt.Errorf("repository: MigrateLegacyKey rewrite: %w", err)
	}
	c.log.Info("migrated legacy numeric key",
		"sender_id", senderID, "records", len(items))
	return len(items), nil
}
