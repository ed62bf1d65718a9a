// Package storage wraps an S3-compatible object store used for generated
// assets (rendered videos, thumbnails, narration tracks). Besides the
// basic put/get/list/delete surface it enforces a capacity ceiling by
// deleting the oldest objects once total usage crosses the threshold.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dreamreel/dreamreel/internal/utils"
)

// Store is a client for a single bucket on an S3-compatible endpoint.
type Store struct {
	client   *minio.Client
	bucket   string
	capacity int64
}

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// NewFromEnv builds a Store from environment configuration:
// S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET, S3_USE_SSL and
// S3_CAPACITY_GB (0 disables eviction).
func NewFromEnv() (*Store, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	access := os.Getenv("S3_ACCESS_KEY")
	secret := os.Getenv("S3_SECRET_KEY")
	bucket := os.Getenv("S3_BUCKET")
	if endpoint == "" || access == "" || secret == "" || bucket == "" {
		return nil, fmt.Errorf("object storage requires S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET")
	}

	useSSL := os.Getenv("S3_USE_SSL") != "false"
	capacityGB, _ := strconv.ParseFloat(os.Getenv("S3_CAPACITY_GB"), 64)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Store{
		client:   client,
		bucket:   bucket,
		capacity: int64(capacityGB * 1024 * 1024 * 1024),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	utils.LogInfo("Created storage bucket: %s", s.bucket)
	return nil
}

// UploadFile stores a local file under key and returns its size.
func (s *Store) UploadFile(ctx context.Context, key, path, contentType string) (int64, error) {
	info, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	utils.LogDebug("Uploaded %s (%d bytes)", key, info.Size)

	if s.capacity > 0 {
		if err := s.EnforceCapacity(ctx); err != nil {
			utils.LogWarning("Capacity enforcement after upload failed: %v", err)
		}
	}
	return info.Size, nil
}

// Upload stores the contents of r under key.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// DownloadFile fetches key into a local file.
func (s *Store) DownloadFile(ctx context.Context, key, path string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// Delete removes a single object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the objects under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}

// PresignedURL returns a time-limited GET URL for key.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

// EnforceCapacity deletes the oldest objects until total usage is back
// under the configured ceiling. A zero capacity disables enforcement.
func (s *Store) EnforceCapacity(ctx context.Context) error {
	if s.capacity <= 0 {
		return nil
	}

	objects, err := s.List(ctx, "")
	if err != nil {
		return err
	}

	victims := evictionPlan(objects, s.capacity)
	for _, key := range victims {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
		utils.LogWarning("Evicted %s to stay under storage capacity", key)
	}
	return nil
}

// evictionPlan returns the keys to delete, oldest first, so the remaining
// objects fit within capacity bytes.
func evictionPlan(objects []Object, capacity int64) []string {
	var total int64
	for _, o := range objects {
		total += o.Size
	}
	if total <= capacity {
		return nil
	}

	sorted := make([]Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LastModified.Before(sorted[j].LastModified)
	})

	var victims []string
	for _, o := range sorted {
		if total <= capacity {
			break
		}
		victims = append(victims, o.Key)
		total -= o.Size
	}
	return victims
}
