// Package objectstore implements the archive/callback/done object
// namespace over Amazon S3.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/railyard-run/railyard/internal/store/retry"
)

// S3Store implements interfaces.ObjectStore over a single bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	policy  retry.Policy
}

// New constructs an S3Store bound to bucket.
func New(client *s3.Client, bucket string, policy retry.Policy) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		policy:  policy,
	}
}

func isThrottle(err error) bool {
	if err == nil {
		return false
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestLimitExceeded", "ThrottlingException":
			return true
		}
	}
	return strings.Contains(err.Error(), "SlowDown")
}

// Put uploads body to key.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read object body for %s: %w", key, err)
	}

	return retry.Do(ctx, s.policy, isThrottle, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(size),
		})
		return err
	})
}

// Get downloads the full object body at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, s.policy, isThrottle, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an object exists at key, without retrying a
// not-found response as an error.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := retry.Do(ctx, s.policy, isThrottle, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				found = false
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check object exists %s: %w", key, err)
	}
	return found, nil
}

// PresignPut returns a time-limited PUT URL for key.
func (s *S3Store) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign put for %s: %w", key, err)
	}
	return req.URL, nil
}
