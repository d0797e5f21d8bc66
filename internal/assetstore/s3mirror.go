package assetstore

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kestrelfaas/kestrel/internal/logging"
)

// S3Mirror best-effort mirrors saved/deleted function assets into an S3
// bucket. Failures are logged but never propagated to the caller: the
// local JSON-file store remains the single source of truth for load/list.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror constructs an S3Mirror. bucket must be non-empty; prefix
// (e.g. "kestrel/") may be empty. When accessKey/secretKey are both
// non-empty they are used as static credentials; otherwise the default AWS
// credential chain (environment, shared config, instance role) applies.
func NewS3Mirror(ctx context.Context, bucket, prefix, accessKey, secretKey string) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &S3Mirror{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (m *S3Mirror) key(id string) string {
	return m.prefix + "functions/" + id + ".json"
}

// Put uploads data under the function's mirrored key. Errors are logged,
// not returned, per the store's "best-effort" contract for the mirror.
func (m *S3Mirror) Put(id string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		logging.Op().Warn("assetstore: s3 mirror put failed", "id", id, "error", err)
	}
}

// Delete removes the function's mirrored object, if any.
func (m *S3Mirror) Delete(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(id)),
	})
	if err != nil {
		logging.Op().Warn("assetstore: s3 mirror delete failed", "id", id, "error", err)
	}
}
