package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-taskpulse/internal/domain"
	"github.com/goccy/go-json"
)

type publishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewClient creates an SNS client. A non-nil endpoint (LocalStack) overrides the default.
func NewClient(awsCfg aws.Config, endpoint *string) *sns.Client {
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// Forwarder copies notification events to an SNS topic so systems outside
// this service can react to them.
type Forwarder struct {
	client   publishAPI
	topicARN string
}

func NewForwarder(client publishAPI, topicARN string) *Forwarder {
	return &Forwarder{client: client, topicARN: topicARN}
}

// HandleNotification publishes n as JSON with category and user_id message
// attributes for subscription filter policies.
func (f *Forwarder) HandleNotification(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = f.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(f.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"category": {DataType: aws.String("String"), StringValue: aws.String(string(n.Type))},
			"user_id":  {DataType: aws.String("String"), StringValue: aws.String(n.UserID)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
