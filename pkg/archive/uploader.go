package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Sentinel errors for common upload failures.
var (
	ErrAccessDenied       = errors.New("access denied")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Uploader copies finished artifacts into the configured bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

// New creates an uploader from cfg. The S3 client is built once; uploads
// reuse it for every job.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.ForcePathStyle
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    logger,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// ObjectKey derives the destination key for a job's artifact.
func (u *Uploader) ObjectKey(jobID, artifactPath string) string {
	key := path.Join(jobID, filepath.Base(artifactPath))
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	return key
}

// ArchiveArtifact uploads the artifact at artifactPath and returns the
// object key it was stored under.
func (u *Uploader) ArchiveArtifact(ctx context.Context, jobID, artifactPath string) (string, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := u.ObjectKey(jobID, artifactPath)
	u.log.Debug("uploading artifact",
		zap.String("job_id", jobID),
		zap.String("bucket", u.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size()))

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("video/mp4"),
	})
	if err != nil {
		return "", classify(err)
	}
	return key, nil
}

// classify maps S3 API error codes onto the package sentinels so callers
// can log actionable failures without string matching.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, apiErr.ErrorMessage())
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("upload artifact: %w", err)
}
