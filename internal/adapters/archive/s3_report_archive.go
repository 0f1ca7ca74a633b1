package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/visa2any/fly2any-sub046/internal/domain/entities"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	"github.com/visa2any/fly2any-sub046/pkg/config"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// S3ReportArchive writes each finished run report as a JSON object under
// {prefix}/{yyyy}/{mm}/{dd}/{run_id}.json.
type S3ReportArchive struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// Static keys and a custom endpoint (MinIO, LocalStack) override it when set.
func NewS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load AWS configuration", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3ReportArchive creates an archive writing to bucket.
func NewS3ReportArchive(client manager.UploadAPIClient, bucket, prefix string) *S3ReportArchive {
	return &S3ReportArchive{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

var _ providers.ReportArchive = (*S3ReportArchive)(nil)

// Key returns the object key of report.
func (a *S3ReportArchive) Key(report *entities.RunReport) string {
	return path.Join(a.prefix, report.StartedAt.UTC().Format("2006/01/02"), report.RunID+".json")
}

// Archive uploads report.
func (a *S3ReportArchive) Archive(ctx context.Context, report *entities.RunReport) error {
	if report == nil || report.RunID == "" {
		return apperrors.NewValidationError("report without run id cannot be archived")
	}

	body, err := json.Marshal(report)
	if err != nil {
		return apperrors.NewInternalError("failed to encode run report", err)
	}

	key := a.Key(report)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"state":   string(report.State),
			"aborted": fmt.Sprintf("%t", report.Aborted),
		},
	})
	if err != nil {
		return apperrors.NewExternalError(fmt.Sprintf("failed to upload run report to s3://%s/%s", a.bucket, key), err)
	}
	return nil
}
