// Package storage archives per-cycle frame captures to S3-compatible object
// storage so field units can be audited and recalibrated from real data.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotService stores raw frame captures.
type SnapshotService interface {
	StoreSnapshot(ctx context.Context, pngData []byte, ts time.Time) error
	FetchSnapshot(ctx context.Context, key string) ([]byte, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// S3Config holds configuration for the snapshot archive.
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	KeyPrefix string
}

type s3Service struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	urlExpiry time.Duration
}

// NewSnapshotService creates an S3/MinIO-backed snapshot archive.
func NewSnapshotService(cfg S3Config) (SnapshotService, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: S3_BUCKET is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "captures"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		// MinIO needs an explicit endpoint and path-style URLs.
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "http://" + endpoint
		}
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &s3Service{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		urlExpiry: 24 * time.Hour,
	}, nil
}

// snapshotKey names a capture by its acquisition instant, matching the
// layout the device uses for local captures.
func (s *s3Service) snapshotKey(ts time.Time) string {
	return fmt.Sprintf("%s/%s.png", s.keyPrefix, ts.UTC().Format("20060102_150405.000"))
}

// StoreSnapshot uploads one PNG capture.
func (s *s3Service) StoreSnapshot(ctx context.Context, pngData []byte, ts time.Time) error {
	key := s.snapshotKey(ts)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pngData),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("storage: upload snapshot %s: %w", key, err)
	}
	return nil
}

// FetchSnapshot downloads a capture by key.
func (s *s3Service) FetchSnapshot(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: download snapshot %s: %w", key, err)
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

// PresignDownload generates a pre-signed URL for retrieving a capture.
func (s *s3Service) PresignDownload(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return request.URL, nil
}

// DeleteSnapshot removes a capture.
func (s *s3Service) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete snapshot %s: %w", key, err)
	}
	return nil
}
