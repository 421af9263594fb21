package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/resilience"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config configures the S3-compatible media store.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // custom endpoint for MinIO and similar
	AccessKey string // optional, default credential chain when empty
	SecretKey string
	URLExpiry time.Duration
}

// S3 uploads videos to a bucket and hands out presigned GET URLs.
type S3 struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	cfg           S3Config
	exec          *resilience.Executor[string]
}

// NewS3 creates an S3 uploader.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 24 * time.Hour
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	slog.Info("S3 media store initialized", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "endpoint", cfg.Endpoint)

	return &S3{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		cfg:           cfg,
		exec: resilience.New[string](resilience.Config{
			MaxRetries: 2,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		}),
	}, nil
}

func (u *S3) fullKey(key string) string {
	if u.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(u.cfg.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Upload implements Uploader.
func (u *S3) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	key := u.fullKey(uuid.NewString() + ".mp4")

	_, err := u.exec.Run(ctx, func(ctx context.Context) (string, error) {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(u.cfg.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return key, err
	})
	if err != nil {
		return "", fmt.Errorf("%w: put object %s: %v", ErrUpload, key, err)
	}

	req, err := u.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.cfg.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}

	slog.Debug("Uploaded video to S3", "key", key, "bytes", len(data))
	return req.URL, nil
}
