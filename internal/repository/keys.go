package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SenderIDs returns the distinct conversation keys known to the store, in
// lexical order. It scans the sender-keyed index projecting only the key
// attribute; conversations still stored under the legacy numeric format do
// not appear until they are migrated.
func (c *Client) SenderIDs(ctx context.Context) ([]string, error) {
	in := &dynamodb.ScanInput{
		TableName:            aws.String(c.tableName),
		IndexName:            aws.String(indexSenderConversation),
		ProjectionExpression: aws.String("sender_id"),
	}

	seen := make(map[string]struct{})
	for {
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: SenderIDs scan: %w", err)
		}
		for _, item := range out.Items {
			v, ok := item["sender_id"]
			if !ok {
				continue
			}
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				seen[s.Value] = struct{}{}
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
