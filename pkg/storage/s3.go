package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	appConfig "github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/metrics"
)

// S3Client serves s3:// image sources from a primary bucket, falling back to
// a backup bucket on missing keys and transient errors.
type S3Client struct {
	client       *s3.Client
	bucket       string
	backupBucket string
}

var _ StorageProvider = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg appConfig.Config) (*S3Client, error) {
	clientLogMode := aws.LogRequest
	if !cfg.Debug {
		clientLogMode = aws.ClientLogMode(0)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		config.WithClientLogMode(clientLogMode),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	return &S3Client{
		client:       client,
		bucket:       cfg.S3Bucket,
		backupBucket: cfg.S3BackupBucket,
	}, nil
}

func (s *S3Client) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	start := time.Now()
	resp, err := s.get(ctx, s.bucket, key)
	if err != nil && s.backupBucket != "" && shouldFailover(err) {
		resp, err = s.get(ctx, s.backupBucket, key)
	}
	if err != nil {
		if isMissing(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, 0, err
	}
	metrics.S3FetchDuration.Observe(time.Since(start).Seconds())

	var contentLength int64
	if resp.ContentLength != nil {
		contentLength = *resp.ContentLength
	}
	return resp.Body, contentLength, nil
}

func (s *S3Client) get(ctx context.Context, bucket, key string) (*s3.GetObjectOutput, error) {
	return s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}

func isMissing(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func shouldFailover(err error) bool {
	// Missing keys may exist in the backup bucket
	if isMissing(err) {
		return true
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.Response != nil {
		status := respErr.Response.StatusCode
		if status == http.StatusNotFound || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
			return true
		}
		if status >= 500 {
			return true
		}
		// Other client errors would fail the same way against the backup
		if status >= 400 && status < 500 {
			return false
		}
	}

	// Generic/Network errors
	return true
}
