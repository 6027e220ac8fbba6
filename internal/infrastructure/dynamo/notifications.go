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

const (
	notificationUserIndex = "user_id-created_at-index"
	batchWriteLimit       = 25
)

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	cp := *n
	cp.CreatedAt = storeTime(cp.CreatedAt)
	cp.UpdatedAt = storeTime(cp.UpdatedAt)
	item, err := attributevalue.MarshalMap(cp)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("notification_id", notificationID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser returns a user's notifications, newest first. unreadOnly filters out read ones.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(notificationUserIndex),
		KeyConditionExpression: aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if unreadOnly {
		input.FilterExpression = aws.String("#read = :false")
		input.ExpressionAttributeNames["#read"] = fieldRead
		input.ExpressionAttributeValues[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	}

	notifications := []domain.Notification{}
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query notifications: %w", err)
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
	}
	return notifications, nil
}

// MarkAsRead sets read=true on a notification owned by userID.
// A missing notification and one owned by someone else both yield domain.ErrNotFound.
func (r *NotificationRepo) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldRead:      true,
		fieldUpdatedAt: storeTimeString(time.Now()),
	})
	if err != nil {
		return err
	}
	ue.Names["#owner"] = fieldUserID
	ue.Values[":owner"] = &types.AttributeValueMemberS{Value: userID}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#owner = :owner"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return err
}

// MarkAllAsRead marks every unread notification of userID as read and returns how many changed.
func (r *NotificationRepo) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	unread, err := r.ListByUser(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range unread {
		if err := r.MarkAsRead(ctx, userID, item.NotificationID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Delete removes a notification owned by userID.
func (r *NotificationRepo) Delete(ctx context.Context, userID, notificationID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey("notification_id", notificationID),
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return err
}

// DeleteAllByUser removes every notification of userID in batches and returns how many were deleted.
func (r *NotificationRepo) DeleteAllByUser(ctx context.Context, userID string) (int, error) {
	all, err := r.ListByUser(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(all); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(all))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, n := range all[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: strKey("notification_id", n.NotificationID)},
			})
		}
		if err := r.batchWrite(ctx, reqs); err != nil {
			return deleted, err
		}
		deleted += len(reqs)
	}
	return deleted, nil
}

// batchWrite sends reqs and resubmits unprocessed items a bounded number of times.
func (r *NotificationRepo) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.tableName: reqs}
	for attempt := 0; attempt < 5 && len(pending[r.tableName]) > 0; attempt++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete notifications: %w", err)
		}
		pending = out.UnprocessedItems
		if len(pending[r.tableName]) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
			}
		}
	}
	if len(pending[r.tableName]) > 0 {
		return fmt.Errorf("batch delete notifications: %d items unprocessed", len(pending[r.tableName]))
	}
	return nil
}
