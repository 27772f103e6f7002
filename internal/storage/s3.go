package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds settings for an S3-compatible backend (AWS or MinIO).
type S3Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	URLExpiry    time.Duration
}

// S3Store implements BlobStore over an S3-compatible backend using presigned
// URLs, so ciphertext never transits this server.
type S3Store struct {
	cfg     S3Config
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store constructs an S3-backed blob store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3Store{cfg: cfg, client: client, presign: s3.NewPresignClient(client)}, nil
}

func (s *S3Store) expiry() time.Duration {
	if s.cfg.URLExpiry > 0 {
		return s.cfg.URLExpiry
	}
	return 15 * time.Minute
}

// PresignPut returns a presigned PUT URL for the key.
func (s *S3Store) PresignPut(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PresignGet returns a presigned GET URL for the key.
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Delete removes the blob at key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	return err
}
