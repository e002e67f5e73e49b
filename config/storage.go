package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3 client and bucket info
type S3Config struct {
	Client     *s3.Client
	BucketName string
}

// NewS3Config initializes the S3 client for the image archive bucket
func (c *Config) NewS3Config(ctx context.Context, optFns ...func(*s3.Options)) (*S3Config, error) {
	if c.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}

	// Load AWS config from environment or shared config
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3ConfigFrom(awsCfg, c.S3Bucket, optFns...), nil
}

// NewS3ConfigFrom builds an S3Config from an already loaded AWS config.
func NewS3ConfigFrom(awsCfg aws.Config, bucket string, optFns ...func(*s3.Options)) *S3Config {
	return &S3Config{
		Client:     s3.NewFromConfig(awsCfg, optFns...),
		BucketName: bucket,
	}
}
