package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-taskpulse/internal/domain"
)

// UserRepo reads user records and maintains their email settings.
// User CRUD itself lives outside this service.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetSMTPOverride stores a user's custom mail server. The password must already be sealed.
func (r *UserRepo) SetSMTPOverride(ctx context.Context, userID string, o *domain.SMTPOverride) error {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldSMTPOverride: o})
	if err != nil {
		return err
	}
	return r.update(ctx, userID, ue.Expr, ue.Names, ue.Values)
}

// ClearSMTPOverride reverts a user to the default mail transport.
func (r *UserRepo) ClearSMTPOverride(ctx context.Context, userID string) error {
	return r.update(ctx, userID, "REMOVE #o", map[string]string{"#o": fieldSMTPOverride}, nil)
}

func (r *UserRepo) update(ctx context.Context, userID, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return err
}
