package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// S3Store implements Store over a single S3 bucket using the
// aws-sdk-go v1 session/credentials construction.
type S3Store struct {
	client *s3.S3
	bucket string
}

func NewS3Store(region, accessKeyID, secretAccessKey, bucket string) (*S3Store, error) {
	if region == "" || accessKeyID == "" || secretAccessKey == "" || bucket == "" {
		return nil, fmt.Errorf("objectstore: s3 requires region, access key, secret key, and bucket")
	}
	sess, err := session.NewSession(&aws.Config{
			Region: aws.String(region),
			Credentials: credentials.NewStaticCredentials(accessKeyID, secretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create aws session: %w", err)
	}
	return &S3Store{client: s3.New(sess), bucket: bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, orgID, executionID, mimeType, filename string, data io.Reader) (string, error) {
	id := uuid.New().String()
	metadata := map[string]*string{
		"organization_id": aws.String(orgID),
	}
	if executionID != "" {
		metadata["execution_id"] = aws.String(executionID)
	}
	if filename != "" {
		metadata["filename"] = aws.String(filename)
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(key(id)),
			Body: aws.ReadSeekCloser(data),
			ContentType: aws.String(mimeType),
			Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: s3 put: %w", err)
	}
	return id, nil
}

func (s *S3Store) Get(ctx context.Context, id string) (io.ReadCloser, string, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(key(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, "", &ErrNotFound{ID: id}
		}
		return nil, "", fmt.Errorf("objectstore: s3 get: %w", err)
	}
	return result.Body, aws.StringValue(result.ContentType), nil
}

func (s *S3Store) Presign(ctx context.Context, id string, ttl time.Duration) (string, error) {
	ttl = clampTTL(ttl)
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key: aws.String(key(id)),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("objectstore: s3 presign: %w", err)
	}
	return url, nil
}

func isS3NotFound(err error) bool {
	type awsErr interface{ Code() string }
	if ae, ok := err.(awsErr); ok {
		return ae.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}
