package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Client fetches grid files from an S3-compatible archive mirror.
type S3Client struct {
	client     *minio.Client
	bucketName string
}

// S3Config holds S3/MinIO connection settings.
type S3Config struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewS3Client creates a client for a read-only archive mirror. The
// bucket must already exist: a mirror is never created from here.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("archive bucket %q does not exist", cfg.Bucket)
	}

	return &S3Client{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Fetch retrieves one grid file from the mirror. The caller must close
// the returned body.
func (s *S3Client) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from minio: %w", err)
	}
	// GetObject is lazy; Stat surfaces missing objects before the caller
	// starts streaming.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return obj, nil
}
