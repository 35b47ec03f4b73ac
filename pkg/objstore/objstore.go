package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore wraps an S3-compatible store for raw uploads. The rest of the
// pipeline treats it as opaque: put bytes, presign puts for browsers,
// presign gets for retrieval.
type ObjectStore struct {
	config ObjectStoreConfig
	client *minio.Client
}

func NewWithConfig(config ObjectStoreConfig) (*ObjectStore, error) {
	if config.Bucket == "" {
		config.Bucket = "corpus"
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &ObjectStore{
		config: config,
		client: client,
	}, nil
}

// Init creates the bucket when it does not exist yet. Idempotent.
func (os *ObjectStore) Init(ctx context.Context) error {
	exists, err := os.client.BucketExists(ctx, os.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := os.client.MakeBucket(ctx, os.config.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

func (os *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := os.client.PutObject(ctx, os.config.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return key, nil
}

func (os *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := os.client.GetObject(ctx, os.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}

func (os *ObjectStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := os.client.PresignedPutObject(ctx, os.config.Bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign put for %s: %w", key, err)
	}

	return u.String(), nil
}

func (os *ObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := os.client.PresignedGetObject(ctx, os.config.Bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign get for %s: %w", key, err)
	}

	return u.String(), nil
}

// UploadKey builds a collision-free object key for a client upload:
// uploads/<date>/<random>/<sanitized-filename>.
func UploadKey(filename string) string {
	return fmt.Sprintf("uploads/%s/%s/%s",
		time.Now().UTC().Format("2006-01-02"),
		uuid.New().String(),
		SanitizeFilename(filename))
}

// SanitizeFilename strips characters outside [A-Za-z0-9._/-] so keys stay
// safe for URLs and S3 APIs.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '/', r == '-':
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return "upload"
	}

	return b.String()
}
