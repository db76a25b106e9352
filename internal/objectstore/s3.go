package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const defaultS3Region = "us-east-1"

func init() {
	MustRegister(Backend{
		Key:         "s3",
		Description: "Amazon S3 (aws-sdk-go-v2), ambient credential chain or static keys",
		New:         NewS3,
	})
}

// s3API 是 s3.Client 的最小子集，便于测试替换。
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Store struct {
	client s3API
}

// NewS3 基于 aws-sdk-go-v2 构造 S3 后端。SDK 自带的重试被关闭，
// 重试与退避统一由解析器控制，避免两层重试叠加。
func NewS3(ctx context.Context, opts Options) (Store, error) {
	region := opts.Region
	if region == "" {
		region = defaultS3Region
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &s3Store{client: client}, nil
}

func (s *s3Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, normS3Error(err)
	}
	info := &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}
	return out.Body, info, nil
}

func (s *s3Store) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, normS3Error(err)
	}
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// normS3Error 把 SDK 错误归类到 ErrNotFound/ErrAccessDenied/ErrTransient，原始错误保留在链上。
func normS3Error(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var (
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
		notFound     *types.NotFound
	)
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if class := classifyCode(apiErr.ErrorCode()); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if class := classifyStatus(respErr.HTTPStatusCode()); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
	}

	if isTransportError(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// classifyCode 覆盖 S3 与 MinIO 共用的错误码。
func classifyCode(code string) error {
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"AllAccessDisabled", "ExpiredToken", "InvalidToken", "AccountProblem":
		return ErrAccessDenied
	case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
		"RequestTimeoutException", "InternalError", "ServiceUnavailable", "XMinioServerNotInitialized":
		return ErrTransient
	}
	return nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAccessDenied
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return ErrTransient
	}
	return nil
}
