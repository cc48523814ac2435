// Package storage archives migration error reports in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	infraconfig "github.com/crmigrate/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ migration.ReportArchive = (*S3ReportArchive)(nil)

// ReportKey returns the object key of the error report of a run
func ReportKey(orgID, runID uuid.UUID) string {
	return fmt.Sprintf("migrations/%s/%s.json", orgID, runID)
}

// Report is the archived document of a run's errors
type Report struct {
	MigrationID     uuid.UUID                  `json:"migrationId"`
	OrgID           uuid.UUID                  `json:"orgId"`
	UserID          uuid.UUID                  `json:"userId"`
	Source          migration.Source           `json:"source"`
	DryRun          bool                       `json:"dryRun"`
	Status          migration.RunStatus        `json:"status"`
	AbortReason     migration.AbortReason      `json:"abortReason,omitempty"`
	StartedAt       time.Time                  `json:"startedAt"`
	CompletedAt     *time.Time                 `json:"completedAt,omitempty"`
	Stats           migration.Stats            `json:"stats"`
	TotalErrors     int                        `json:"totalErrors"`
	ErrorsTruncated bool                       `json:"errorsTruncated"`
	Errors          []migration.MigrationError `json:"errors"`
	ErrorsByKind    map[crm.EntityKind]int     `json:"errorsByKind"`
}

// NewReport builds the archived document for run. errs is the full archived
// error list, which may be longer than the run's reported errors.
func NewReport(run *migration.Run, errs []migration.MigrationError) *Report {
	if errs == nil {
		errs = []migration.MigrationError{}
	}
	byKind := make(map[crm.EntityKind]int)
	for _, e := range errs {
		if e.Kind != "" {
			byKind[e.Kind]++
		}
	}
	return &Report{
		MigrationID:     run.ID,
		OrgID:           run.OrgID,
		UserID:          run.UserID,
		Source:          run.Source,
		DryRun:          run.DryRun,
		Status:          run.Status,
		AbortReason:     run.AbortReason,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		Stats:           run.Stats,
		TotalErrors:     run.TotalErrors,
		ErrorsTruncated: run.TotalErrors > len(errs),
		Errors:          errs,
		ErrorsByKind:    byKind,
	}
}

// S3ReportArchive stores error reports as JSON objects. It works with any
// S3-compatible backend (AWS S3, MinIO, RustFS).
type S3ReportArchive struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	presignExpiration time.Duration
	logger            *zap.Logger
}

// S3ReportArchiveOption is a functional option for configuring S3ReportArchive
type S3ReportArchiveOption func(*S3ReportArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ReportArchiveOption {
	return func(s *S3ReportArchive) {
		s.logger = logger
	}
}

// WithPresignExpiration sets the default lifetime of report download URLs
func WithPresignExpiration(d time.Duration) S3ReportArchiveOption {
	return func(s *S3ReportArchive) {
		s.presignExpiration = d
	}
}

// NewS3ReportArchive creates an archive from configuration
func NewS3ReportArchive(cfg *infraconfig.StorageConfig, opts ...S3ReportArchiveOption) (*S3ReportArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		// self-hosted backends reject streaming trailer checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	archive := &S3ReportArchive{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		presignExpiration: 15 * time.Minute,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	return archive, nil
}

// normalizeEndpoint adds a scheme to endpoint. An empty endpoint means AWS.
func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}
	return endpoint, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *S3ReportArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating report bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads the report of run and returns its object key
func (s *S3ReportArchive) Store(ctx context.Context, run *migration.Run, errs []migration.MigrationError) (string, error) {
	body, err := json.Marshal(NewReport(run, errs))
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	key := ReportKey(run.OrgID, run.ID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
		Metadata: map[string]string{
			"migration-id": run.ID.String(),
			"source":       string(run.Source),
			"status":       string(run.Status),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", key, err)
	}

	s.logger.Info("Migration error report archived",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("errors", len(errs)),
	)
	return key, nil
}

// DownloadURL returns a presigned GET URL for the report stored under key
func (s *S3ReportArchive) DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("report key is required")
	}
	if expiresIn <= 0 {
		expiresIn = s.presignExpiration
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign report URL: %w", err)
	}
	return req.URL, time.Now().Add(expiresIn), nil
}

// Bucket returns the bucket name
func (s *S3ReportArchive) Bucket() string {
	return s.bucket
}
