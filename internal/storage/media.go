// Package storage holds staged media objects (video files and thumbnails)
// in an S3-compatible bucket until they are published to a platform.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MediaStore fetches and stores staged media objects. Implemented by Client;
// tests use in-memory doubles.
type MediaStore interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Store(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Client struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

type Config struct {
	Endpoint  string
	Bucket    string
	PublicURL string
	Region    string
}

func New(cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	// custom endpoint for R2-style deployments
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Client{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicURL,
	}, nil
}

// Fetch streams a staged object. The caller closes the reader.
func (c *Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media %q: %w", key, err)
	}
	return out.Body, nil
}

// Store uploads an object and returns its public URL.
func (c *Client) Store(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store media %q: %w", key, err)
	}

	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key), nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", c.bucket, key), nil
}
