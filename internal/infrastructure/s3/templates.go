package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-taskpulse/internal/domain"
)

// maxTemplateSize caps how much of an override object is read.
const maxTemplateSize = 256 << 10

type getObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TemplateStore reads per-category email template overrides stored as
// <prefix>/<category>.html in a bucket.
type TemplateStore struct {
	client getObjectAPI
	bucket string
	prefix string
}

func NewTemplateStore(client getObjectAPI, bucket, prefix string) *TemplateStore {
	return &TemplateStore{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key holding the override for category.
func (s *TemplateStore) Key(category domain.Category) string {
	return path.Join(s.prefix, string(category)+".html")
}

// Fetch returns the override body for category. found is false when no
// override object exists.
func (s *TemplateStore) Fetch(ctx context.Context, category domain.Category) (string, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(category)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("s3 get template: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxTemplateSize))
	if err != nil {
		return "", false, fmt.Errorf("read template: %w", err)
	}
	return string(body), true, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
