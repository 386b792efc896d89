// Package storage keeps copies of ledger exports in S3-compatible object
// storage (AWS S3, MinIO, RustFS).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/clinic/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// CSVContentType is stored with every archived export
const CSVContentType = "text/csv; charset=utf-8"

// S3Archive uploads export files and hands out time-limited download links.
type S3Archive struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	prefix     string
	expiration time.Duration
	logger     *zap.Logger
}

// Option configures an S3Archive
type Option func(*S3Archive)

// WithLogger sets the logger used for upload events
func WithLogger(logger *zap.Logger) Option {
	return func(a *S3Archive) {
		a.logger = logger
	}
}

// NewS3Archive builds a client from cfg. No request is made until the first
// upload, so a wrong endpoint only shows up then.
func NewS3Archive(ctx context.Context, cfg *config.ArchiveConfig, opts ...Option) (*S3Archive, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("archive access key and secret key are required")
	}
	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		// empty endpoint means AWS itself
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	a := &S3Archive{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		expiration: cfg.PresignExpiration,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.expiration <= 0 {
		a.expiration = 15 * time.Minute
	}
	return a, nil
}

// normalizeEndpoint adds a scheme to bare host:port endpoints
func normalizeEndpoint(raw string, useSSL bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if useSSL {
			raw = "https://" + raw
		} else {
			raw = "http://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid archive endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid archive endpoint %q: missing host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Key names the object for an export of kind taken at at:
// <prefix>/<kind>/<yyyy>/<mm>/<kind>-<timestamp>.csv
func (a *S3Archive) Key(kind string, at time.Time) string {
	at = at.UTC()
	name := fmt.Sprintf("%s-%s.csv", kind, at.Format("20060102T150405Z"))
	return path.Join(a.prefix, kind, at.Format("2006"), at.Format("01"), name)
}

// Location is the s3:// URI of key
func (a *S3Archive) Location(key string) string {
	return "s3://" + a.bucket + "/" + key
}

// Put uploads size bytes of body under key. body must be seekable so the SDK
// can sign the payload and retry.
func (a *S3Archive) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	if key == "" {
		return errors.New("archive key is required")
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(CSVContentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", a.Location(key), err)
	}
	a.logger.Info("export archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return nil
}

// DownloadURL presigns a GET for key. Signing is local; no request is sent.
func (a *S3Archive) DownloadURL(ctx context.Context, key string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("archive key is required")
	}
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.expiration))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", a.Location(key), err)
	}
	return req.URL, time.Now().Add(a.expiration), nil
}
