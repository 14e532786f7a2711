// Package storage keeps organization logos in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/errs"
)

// MaxLogoSize bounds uploaded logos.
const MaxLogoSize = 2 << 20

var logoExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

// LogoStore stores an organization logo and returns its public URL.
type LogoStore interface {
	PutLogo(ctx context.Context, orgID uuid.UUID, contentType string, body io.Reader) (string, error)
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewS3Store builds a client from cfg. Static keys are used when given,
// otherwise the default AWS credential chain. A custom endpoint switches to
// path-style addressing for MinIO and similar servers.
func NewS3Store(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

func (s *S3Store) PutLogo(ctx context.Context, orgID uuid.UUID, contentType string, body io.Reader) (string, error) {
	ext, ok := logoExtensions[contentType]
	if !ok {
		return "", errs.Validation("logo", "Logo must be a PNG, JPEG, WebP, GIF or SVG image")
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxLogoSize+1))
	if err != nil {
		return "", fmt.Errorf("read logo: %w", err)
	}
	if len(data) == 0 {
		return "", errs.Validation("logo", "Logo is empty")
	}
	if len(data) > MaxLogoSize {
		return "", errs.Validation("logo", "Logo must be at most 2 MB")
	}

	key := fmt.Sprintf("organizations/%s/logo-%s%s", orgID, uuid.NewString()[:8], ext)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		s.logger.Error("logo upload failed", "organization_id", orgID, "error", err)
		return "", fmt.Errorf("%w: upload logo: %v", errs.ErrProviderUnavailable, err)
	}

	return s.baseURL + "/" + key, nil
}

var _ LogoStore = (*S3Store)(nil)
