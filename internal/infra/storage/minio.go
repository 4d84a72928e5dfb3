package storage

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
)

// Store implements the BlobStore port on MinIO / S3-compatible storage.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New connects to MinIO and ensures the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// Upload stores one blob under a unique key and returns its file reference.
func (s *Store) Upload(ctx context.Context, b domain.Blob) (domain.FileRef, error) {
	contentType := b.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	folder := b.Folder
	if folder == "" {
		folder = "uploads"
	}
	key := path.Join(folder, uuid.New().String()+path.Ext(b.Name))

	info, err := s.client.PutObject(ctx, s.bucketName, key, b.Reader, b.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return domain.FileRef{}, err
	}

	// public-bucket URL; private buckets would need presigned URLs instead
	url := fmt.Sprintf("http://%s/%s/%s", s.client.EndpointURL().Host, s.bucketName, key)
	return domain.FileRef{
		StorageID:    key,
		OriginalName: b.Name,
		URL:          url,
		ByteSize:     info.Size,
		MimeType:     contentType,
		UploadedAt:   time.Now(),
	}, nil
}

// Delete removes a stored blob by its storage key.
func (s *Store) Delete(ctx context.Context, storageID string) error {
	return s.client.RemoveObject(ctx, s.bucketName, storageID, minio.RemoveObjectOptions{})
}

// Check pings the bucket so the health endpoint can report blob-store state.
func (s *Store) Check(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}
