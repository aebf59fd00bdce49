package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

const avatarPresignTTL = 7 * 24 * time.Hour

// AvatarStorage keeps downloaded profile photos in the platform's private S3
// bucket so the HR frontend can show the linked account without hitting
// Telegram again.
type AvatarStorage struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

func NewAvatarStorage(client *minio.Client, bucket string) *AvatarStorage {
	return &AvatarStorage{
		client: client,
		bucket: strings.TrimSpace(bucket),
	}
}

func (s *AvatarStorage) ensureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}

	return nil
}

// Put uploads the photo and returns a presigned GET URL for it.
func (s *AvatarStorage) Put(ctx context.Context, userID int64, photo []byte) (string, error) {
	if len(photo) == 0 {
		return "", fmt.Errorf("avatar payload is empty")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := fmt.Sprintf("telegram-avatars/%d.jpg", userID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(photo), int64(len(photo)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("put avatar to s3: %w", err)
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, avatarPresignTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign avatar url: %w", err)
	}

	return signed.String(), nil
}
