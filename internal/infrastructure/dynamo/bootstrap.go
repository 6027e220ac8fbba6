package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-taskpulse/internal/config"
)

type tableCreator interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// tableSpec describes one table: its hash key and the string-keyed GSIs on it.
type tableSpec struct {
	name    string
	hashKey string
	indexes []indexSpec
}

type indexSpec struct {
	name, hashKey, sortKey string
}

func tableSpecs(tables config.DynamoTables) []tableSpec {
	return []tableSpec{
		{
			name:    tables.Tasks,
			hashKey: "task_id",
			// Sparse: only rules carry the recurring flag.
			indexes: []indexSpec{{recurringIndex, fieldRecurringFlag, fieldDueDate}},
		},
		{
			name:    tables.Notifications,
			hashKey: "notification_id",
			indexes: []indexSpec{{notificationUserIndex, fieldUserID, fieldCreatedAt}},
		},
		{name: tables.Preferences, hashKey: fieldUserID},
		{
			name:    tables.AuditLogs,
			hashKey: "audit_id",
			indexes: []indexSpec{
				{auditEntityIndex, fieldEntityKey, fieldCreatedAt},
				{auditActorIndex, fieldActorID, fieldCreatedAt},
			},
		},
		{name: tables.Users, hashKey: fieldUserID},
	}
}

// Bootstrap creates the tables and GSIs that do not exist yet. A failure on
// one table is logged and the rest are still attempted.
func Bootstrap(ctx context.Context, client tableCreator, tables config.DynamoTables, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, spec := range tableSpecs(tables) {
		_, err := client.CreateTable(ctx, spec.input())
		var inUse *types.ResourceInUseException
		switch {
		case err == nil:
			logger.Info("created table", "table", spec.name)
		case errors.As(err, &inUse):
		default:
			logger.Warn("could not create table", "table", spec.name, "err", err)
		}
	}
}

func (s tableSpec) input() *dynamodb.CreateTableInput {
	attrs := map[string]bool{s.hashKey: true}
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(s.name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(s.hashKey), KeyType: types.KeyTypeHash},
		},
	}
	order := []string{s.hashKey}
	for _, idx := range s.indexes {
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, gsi(idx.name, idx.hashKey, idx.sortKey))
		for _, k := range []string{idx.hashKey, idx.sortKey} {
			if k != "" && !attrs[k] {
				attrs[k] = true
				order = append(order, k)
			}
		}
	}
	for _, k := range order {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(k), AttributeType: types.ScalarAttributeTypeS,
		})
	}
	return in
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}
