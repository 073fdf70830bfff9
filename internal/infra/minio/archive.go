package minio

import (
	"context"
	"fmt"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive copies annotated outputs into an object-store bucket.
type Archive struct {
	client *miniogo.Client
	bucket string
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func NewArchive(cfg ArchiveConfig) (*Archive, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket}, nil
}

func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ArchiveOutput uploads the file at localPath under objectKey.
func (a *Archive) ArchiveOutput(ctx context.Context, objectKey string, localPath string) error {
	_, err := a.client.FPutObject(ctx, a.bucket, objectKey, localPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", objectKey, err)
	}
	return nil
}

// Stat reports the archived object's size, mainly for verification.
func (a *Archive) Stat(ctx context.Context, objectKey string) (int64, error) {
	info, err := a.client.StatObject(ctx, a.bucket, objectKey, miniogo.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", objectKey, err)
	}
	return info.Size, nil
}
