package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-taskpulse/internal/domain"
)

// recurringIndex is a sparse GSI: only rule rows carry recurring_flag.
const recurringIndex = "recurring-due_date-index"

// TaskRepo provides typed DynamoDB operations for the tasks table.
type TaskRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTaskRepo(client *dynamodb.Client, tableName string) *TaskRepo {
	return &TaskRepo{client: client, tableName: tableName}
}

// storeTime normalises a timestamp so stored strings sort chronologically.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func storeTimeString(t time.Time) string {
	return storeTime(t).Format(time.RFC3339)
}

func marshalTask(t *domain.Task) (map[string]types.AttributeValue, error) {
	cp := *t
	cp.DueDate = storeTime(cp.DueDate)
	if cp.NextRun != nil {
		nr := storeTime(*cp.NextRun)
		cp.NextRun = &nr
	}
	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	if cp.IsRecurring {
		item[fieldRecurringFlag] = &types.AttributeValueMemberS{Value: "1"}
	}
	return item, nil
}

func (r *TaskRepo) Put(ctx context.Context, t *domain.Task) error {
	item, err := marshalTask(t)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("task_id", taskID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	var t domain.Task
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateOccurrence writes a non-recurring occurrence row. Returns domain.ErrConflict
// when a row with the same id already exists.
func (r *TaskRepo) CreateOccurrence(ctx context.Context, t *domain.Task) error {
	item, err := marshalTask(t)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(task_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("occurrence %s: %w", t.TaskID, domain.ErrConflict)
	}
	return err
}

// FindRecurringDueBy returns every recurring rule whose due date is at or before ts.
func (r *TaskRepo) FindRecurringDueBy(ctx context.Context, ts time.Time) ([]domain.Task, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(recurringIndex),
		KeyConditionExpression: aws.String("#flag = :one AND #due <= :ts"),
		ExpressionAttributeNames: map[string]string{
			"#flag": fieldRecurringFlag,
			"#due":  fieldDueDate,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberS{Value: "1"},
			":ts":  &types.AttributeValueMemberS{Value: storeTimeString(ts)},
		},
	})
	var tasks []domain.Task
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query recurring tasks: %w", err)
		}
		var page []domain.Task
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		tasks = append(tasks, page...)
	}
	return tasks, nil
}

// AdvanceDueDate moves a rule's due date forward only if it still equals expectedDue.
// Returns domain.ErrConflict when the guard does not hold.
func (r *TaskRepo) AdvanceDueDate(ctx context.Context, taskID string, expectedDue, newDue, nextRun time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldDueDate:   storeTimeString(newDue),
		fieldNextRun:   storeTimeString(nextRun),
		fieldUpdatedAt: storeTimeString(time.Now()),
	})
	if err != nil {
		return err
	}
	ue.Names["#guard"] = fieldDueDate
	ue.Names["#rec"] = fieldIsRecurring
	ue.Values[":expected"] = &types.AttributeValueMemberS{Value: storeTimeString(expectedDue)}
	ue.Values[":true"] = &types.AttributeValueMemberBOOL{Value: true}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("task_id", taskID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#guard = :expected AND #rec = :true"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("advance %s: %w", taskID, domain.ErrConflict)
	}
	return err
}

// SetRecurrence marks a task recurring, resetting its due date and next run.
func (r *TaskRepo) SetRecurrence(ctx context.Context, taskID string, freq domain.Frequency, due, nextRun time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldIsRecurring:   true,
		fieldRecurringFlag: "1",
		fieldFrequency:     string(freq),
		fieldDueDate:       storeTimeString(due),
		fieldNextRun:       storeTimeString(nextRun),
		fieldUpdatedAt:     storeTimeString(time.Now()),
	})
	if err != nil {
		return err
	}
	return r.updateExisting(ctx, taskID, ue.Expr, ue.Names, ue.Values)
}

// ClearRecurrence turns a rule back into a plain task and drops it from the sparse index.
func (r *TaskRepo) ClearRecurrence(ctx context.Context, taskID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldIsRecurring: false,
		fieldUpdatedAt:   storeTimeString(time.Now()),
	})
	if err != nil {
		return err
	}
	ue.Names["#rf"] = fieldRecurringFlag
	ue.Names["#fq"] = fieldFrequency
	ue.Names["#nr"] = fieldNextRun
	return r.updateExisting(ctx, taskID, ue.Expr+" REMOVE #rf, #fq, #nr", ue.Names, ue.Values)
}

func (r *TaskRepo) updateExisting(ctx context.Context, taskID, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("task_id", taskID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(task_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	return err
}
