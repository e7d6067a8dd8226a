package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema_ExistingTableUntouched(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Len(t, db.describeIns, 1)
	require.Empty(t, db.createIns)
}

func TestEnsureSchema_CreatesMissingTable(t *testing.T) {
	db := &fakeDynamo{describeErr: &types.ResourceNotFoundException{}}
	c := mustNewClient(t, db)

	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Len(t, db.createIns, 1)

	in := db.createIns[0]
	require.Equal(t, "conversations", *in.TableName)
	require.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	require.Len(t, in.GlobalSecondaryIndexes, 5)

	names := make([]string, 0, len(in.GlobalSecondaryIndexes))
	for _, gsi := range in.GlobalSecondaryIndexes {
		names = append(names, *gsi.IndexName)
	}
	require.ElementsMatch(t, []string{
		indexSenderEvent,
		indexTypeTimestamp,
		indexSenderConversation,
		indexEventTimestamp,
		indexNameTimestamp,
	}, names)
}

func TestEnsureSchema_LosingCreateRaceIsFine(t *testing.T) {
	db := &fakeDynamo{
		describeErr: &types.ResourceNotFoundException{},
		createErr:   &types.ResourceInUseException{},
	}
	c := mustNewClient(t, db)

	// Another initializer created the table first. A ResourceInUse answer
	// must not fail initialization; the waiter then sees the table active.
	require.NoError(t, c.EnsureSchema(context.Background()))
	require.Len(t, db.createIns, 1)
}

func TestEnsureSchema_DescribeError(t *testing.T) {
	db := &fakeDynamo{describeErr: errors.New("access denied")}
	c := mustNewClient(t, db)

	err := c.EnsureSchema(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "describe table")
}
