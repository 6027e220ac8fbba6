package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-taskpulse/internal/domain"
)

const (
	auditEntityIndex = "entity-index"
	auditActorIndex  = "actor-index"

	defaultAuditLimit int32 = 50
	maxAuditLimit     int32 = 200
)

// EntityKey is the partition value of the entity GSI.
func EntityKey(entityType, entityID string) string {
	return entityType + "#" + entityID
}

// AuditRepo provides DynamoDB operations for the audit_logs table.
// It is append-only: there is no update or delete path.
type AuditRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAuditRepo(client *dynamodb.Client, tableName string) *AuditRepo {
	return &AuditRepo{client: client, tableName: tableName}
}

// Append writes e. An existing entry with the same id is never overwritten.
func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	cp := *e
	cp.CreatedAt = storeTime(cp.CreatedAt)
	cp.EntityKey = EntityKey(cp.EntityType, cp.EntityID)
	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(audit_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("audit entry %s: %w", e.AuditID, domain.ErrConflict)
	}
	return err
}

func (r *AuditRepo) Get(ctx context.Context, auditID string) (*domain.AuditEntry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("audit_id", auditID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("audit entry %s: %w", auditID, domain.ErrNotFound)
	}
	var e domain.AuditEntry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// History returns every entry for one entity, newest first.
func (r *AuditRepo) History(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(auditEntityIndex),
		KeyConditionExpression:   aws.String("#ek = :ek"),
		ExpressionAttributeNames: map[string]string{"#ek": fieldEntityKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ek": &types.AttributeValueMemberS{Value: EntityKey(entityType, entityID)},
		},
		ScanIndexForward: aws.Bool(false),
	})
	entries := []domain.AuditEntry{}
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query audit history: %w", err)
		}
		var page []domain.AuditEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

// Query returns one page of entries matching f. Entity and actor filters use
// their GSI (newest first); any other combination falls back to a scan.
func (r *AuditRepo) Query(ctx context.Context, f domain.AuditFilter) (*domain.AuditPage, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	limit = min(limit, maxAuditLimit)

	startKey, err := decodeCursor(f.Cursor)
	if err != nil {
		return nil, err
	}

	q := newAuditConditions()
	var keyCond, index string
	switch {
	case f.EntityType != "" && f.EntityID != "":
		index = auditEntityIndex
		keyCond = "#ek = :ek"
		q.names["#ek"] = fieldEntityKey
		q.values[":ek"] = &types.AttributeValueMemberS{Value: EntityKey(f.EntityType, f.EntityID)}
		q.eq("actor_id", f.ActorID)
	case f.ActorID != "":
		index = auditActorIndex
		keyCond = "#actor = :actor"
		q.names["#actor"] = fieldActorID
		q.values[":actor"] = &types.AttributeValueMemberS{Value: f.ActorID}
		q.eq("entity_type", f.EntityType)
		q.eq("entity_id", f.EntityID)
	default:
		q.eq("entity_type", f.EntityType)
		q.eq("entity_id", f.EntityID)
	}
	q.eq("action", f.Action)

	var rangeCond string
	if f.From != nil || f.To != nil {
		q.names["#ca"] = fieldCreatedAt
		from, to := "0", "9"
		if f.From != nil {
			from = storeTimeString(*f.From)
		}
		if f.To != nil {
			to = storeTimeString(*f.To)
		}
		q.values[":from"] = &types.AttributeValueMemberS{Value: from}
		q.values[":to"] = &types.AttributeValueMemberS{Value: to}
		rangeCond = "#ca BETWEEN :from AND :to"
	}

	var items []map[string]types.AttributeValue
	var last map[string]types.AttributeValue
	if index != "" {
		if rangeCond != "" {
			keyCond += " AND " + rangeCond
		}
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(index),
			KeyConditionExpression:    aws.String(keyCond),
			FilterExpression:          q.filter(),
			ExpressionAttributeNames:  q.names,
			ExpressionAttributeValues: q.values,
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(limit),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query audit logs: %w", err)
		}
		items, last = out.Items, out.LastEvaluatedKey
	} else {
		if rangeCond != "" {
			q.conds = append(q.conds, rangeCond)
		}
		input := &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			FilterExpression:  q.filter(),
			Limit:             aws.Int32(limit),
			ExclusiveStartKey: startKey,
		}
		if len(q.names) > 0 {
			input.ExpressionAttributeNames = q.names
			input.ExpressionAttributeValues = q.values
		}
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan audit logs: %w", err)
		}
		items, last = out.Items, out.LastEvaluatedKey
	}

	page := &domain.AuditPage{Entries: []domain.AuditEntry{}}
	if err := attributevalue.UnmarshalListOfMaps(items, &page.Entries); err != nil {
		return nil, err
	}
	if page.NextCursor, err = encodeCursor(last); err != nil {
		return nil, err
	}
	return page, nil
}

// auditConditions accumulates equality filters with their placeholders.
type auditConditions struct {
	conds  []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newAuditConditions() *auditConditions {
	return &auditConditions{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

func (c *auditConditions) eq(attr, value string) {
	if value == "" {
		return
	}
	n := fmt.Sprintf("#c%d", len(c.conds))
	v := fmt.Sprintf(":c%d", len(c.conds))
	c.conds = append(c.conds, n+" = "+v)
	c.names[n] = attr
	c.values[v] = &types.AttributeValueMemberS{Value: value}
}

func (c *auditConditions) filter() *string {
	if len(c.conds) == 0 {
		return nil
	}
	return aws.String(strings.Join(c.conds, " AND "))
}
