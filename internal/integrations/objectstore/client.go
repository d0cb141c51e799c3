package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the minimal S3 interface required by Client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI is the minimal presign interface required by Client.
// *s3.PresignClient satisfies it.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client wraps an S3 bucket for chart artifact writes and time-limited
// read URLs.
type Client struct {
	api       s3API
	presigner presignAPI
	bucket    string
}

// New creates a Client for the given bucket.
func New(api s3API, presigner presignAPI, bucket string) (*Client, error) {
	if api == nil {
		return nil, errors.New("objectstore: api must not be nil")
	}
	if presigner == nil {
		return nil, errors.New("objectstore: presigner must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("objectstore: bucket must not be empty")
	}
	return &Client{api: api, presigner: presigner, bucket: bucket}, nil
}

// Put writes an object under the given key.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %q: %w", key, err)
	}
	return nil
}

// SignedURL mints a time-limited read URL for the key. On signing failure
// it falls back to the unsigned direct URL rather than failing the request;
// the fallback does not grant access to a private object.
func (c *Client) SignedURL(ctx context.Context, key string, expires time.Duration) string {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		slog.Warn("presign failed, returning unsigned URL", "key", key, "err", err)
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.bucket, key)
	}
	return req.URL
}
