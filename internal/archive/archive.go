// Package archive keeps an audit copy of every imported advisor CSV in
// object storage, so bulk account changes can be traced back to the file
// that caused them.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Service writes import batches to one MinIO bucket. A nil *Service is
// valid and archives nothing, mirroring how the import behaves when the
// archive is not configured.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and ensures the archive bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}
	return &Service{client: client, bucket: bucket}, nil
}

// StoreImport archives one raw CSV batch and returns the object name. The
// name carries the import instant and how many advisors the batch added.
func (s *Service) StoreImport(ctx context.Context, raw []byte, added int) (string, error) {
	if s == nil {
		return "", nil
	}
	objectName := fmt.Sprintf("imports/%s-%dadded.csv", time.Now().UTC().Format("20060102T150405"), added)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", fmt.Errorf("archive import: %w", err)
	}
	return objectName, nil
}
