package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/pageza/pantrycam/config"
	"github.com/pageza/pantrycam/internal/types"
)

const defaultLinkTTL = 15 * time.Minute

// S3Store archives images in an S3 bucket.
type S3Store struct {
	cfg     *config.S3Config
	presign *s3.PresignClient
	linkTTL time.Duration
	log     zerolog.Logger
}

func NewS3Store(cfg *config.S3Config, log zerolog.Logger) *S3Store {
	return &S3Store{
		cfg:     cfg,
		presign: s3.NewPresignClient(cfg.Client),
		linkTTL: defaultLinkTTL,
		log:     log,
	}
}

// Put uploads img and returns a presigned download link that expires after
// the link TTL.
func (s *S3Store) Put(ctx context.Context, img types.Image) (string, error) {
	key := objectKey(img.ContentType)
	_, err := s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.Data),
		ContentType: aws.String(img.ContentType),
		Metadata:    map[string]string{"original-filename": img.Filename},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(img.Data)).Msg("image archived")
	return s.Link(ctx, key)
}

// Link returns a time-limited download URL for key.
func (s *S3Store) Link(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.linkTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
