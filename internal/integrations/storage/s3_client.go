// Package storage provides presigned downloads and uploads against S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPresignTTL = time.Hour

// s3API is the minimal S3 interface required by Client.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI is satisfied by *s3.PresignClient.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client serves objects from a single bucket.
type Client struct {
	api       s3API
	presigner presignAPI
	bucket    string
}

// New creates a storage Client for bucket.
func New(api s3API, presigner presignAPI, bucket string) (*Client, error) {
	if api == nil || presigner == nil {
		return nil, errors.New("storage: api must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: bucket must not be empty")
	}
	return &Client{api: api, presigner: presigner, bucket: bucket}, nil
}

// PresignGet returns a time-limited download URL for key.
func (c *Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("storage: PresignGet: key is required")
	}
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	out, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: PresignGet %q: %w", key, err)
	}
	if out == nil {
		return "", nil
	}
	return out.URL, nil
}

// Upload stores the file at path under key.
func (c *Client) Upload(ctx context.Context, path, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: Upload: key is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("storage: Upload open: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("storage: Upload stat: %w", err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if ct := contentType(key); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("storage: Upload %q: %w", key, err)
	}
	return nil
}

func contentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == ".mp4" {
		return "video/mp4"
	}
	return mime.TypeByExtension(ext)
}
