package document

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 fetcher. Empty keys fall back to the default
// credential chain.
type S3Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// S3Fetcher downloads objects with the s3 transfer manager.
type S3Fetcher struct {
	downloader *manager.Downloader
	timeout    time.Duration
}

func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
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
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &S3Fetcher{
		downloader: manager.NewDownloader(s3.NewFromConfig(awsCfg)),
		timeout:    cfg.Timeout,
	}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	buf := manager.NewWriteAtBuffer([]byte{})
	if _, err := f.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("s3 download s3://%s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

var _ ObjectFetcher = (*S3Fetcher)(nil)
