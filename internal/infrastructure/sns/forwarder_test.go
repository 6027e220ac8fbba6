package sns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-taskpulse/internal/domain"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, f.err
}

func TestForwarder_HandleNotification(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(pub, "arn:aws:sns:us-east-1:000000000000:notifications")

	n := &domain.Notification{
		NotificationID: "n1",
		UserID:         "u1",
		Type:           domain.CategoryTaskCompleted,
		Title:          "Done",
		Message:        "Task finished",
		CreatedAt:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.HandleNotification(context.Background(), n))
	require.Len(t, pub.inputs, 1)

	in := pub.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:notifications", *in.TopicArn)
	assert.Equal(t, "task_completed", *in.MessageAttributes["category"].StringValue)
	assert.Equal(t, "u1", *in.MessageAttributes["user_id"].StringValue)

	var decoded domain.Notification
	require.NoError(t, json.Unmarshal([]byte(*in.Message), &decoded))
	assert.Equal(t, "n1", decoded.NotificationID)
	assert.Equal(t, "Task finished", decoded.Message)
}

func TestForwarder_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("throttled")}
	f := NewForwarder(pub, "arn")

	err := f.HandleNotification(context.Background(), &domain.Notification{NotificationID: "n1"})
	assert.ErrorContains(t, err, "throttled")
}
