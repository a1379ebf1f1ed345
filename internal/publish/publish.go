// Package publish uploads the exported snapshot to S3-compatible object
// storage (Cloudflare R2).
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config holds the bucket settings
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	ObjectKey       string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Publisher uploads files to a single bucket
type Publisher struct {
	bucket    string
	objectKey string
	up        uploader
	log       zerolog.Logger
}

// New builds an R2 publisher from static credentials
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return newPublisher(cfg, manager.NewUploader(client), log), nil
}

func newPublisher(cfg Config, up uploader, log zerolog.Logger) *Publisher {
	return &Publisher{
		bucket:    cfg.Bucket,
		objectKey: cfg.ObjectKey,
		up:        up,
		log:       log.With().Str("service", "publish").Logger(),
	}
}

// Publish uploads the file at path. The object key defaults to the file name.
func (p *Publisher) Publish(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	key := p.objectKey
	if key == "" {
		key = filepath.Base(path)
	}

	_, err = p.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	p.log.Info().Str("bucket", p.bucket).Str("key", key).Msg("Snapshot published")
	return nil
}
