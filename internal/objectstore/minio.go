package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	MustRegister(Backend{
		Key:         "minio",
		Description: "S3-compatible endpoint via minio-go, TLS follows the endpoint scheme",
		New:         NewMinio,
	})
}

type minioStore struct {
	client *minio.Client
}

// NewMinio 构造 S3 兼容后端。未配置静态凭证时依次读取 AWS_* 与 MINIO_* 环境变量。
func NewMinio(_ context.Context, opts Options) (Store, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint required")
	}
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse minio endpoint: %w", err)
	}

	var creds *credentials.Credentials
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}

	lookup := minio.BucketLookupAuto
	if opts.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        creds,
		Secure:       u.Scheme == "https",
		Region:       opts.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, normMinioError(err)
	}
	// GetObject 是惰性的，Stat 才会真正发出请求并暴露 404/403。
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, normMinioError(err)
	}
	return obj, minioInfo(bucket, key, stat), nil
}

func (s *minioStore) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, normMinioError(err)
	}
	return minioInfo(bucket, key, stat), nil
}

func minioInfo(bucket, key string, stat minio.ObjectInfo) *ObjectInfo {
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}
}

func normMinioError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	resp := minio.ToErrorResponse(err)
	if class := classifyCode(resp.Code); class != nil {
		return fmt.Errorf("%w: %w", class, err)
	}
	if resp.StatusCode != 0 {
		if class := classifyStatus(resp.StatusCode); class != nil {
			return fmt.Errorf("%w: %w", class, err)
		}
	}

	if isTransportError(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
