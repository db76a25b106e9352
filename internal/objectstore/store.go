// Package objectstore defines the flat bucket + key contract the resolver
// fetches source images through, the error classes every backend must map its
// failures onto, and a registry of the concrete backends (s3, minio) that the
// configuration can select by name.
package objectstore

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrNotFound 表示 bucket 或对象不存在。
	ErrNotFound = errors.New("objectstore: object not found")
	// ErrAccessDenied 表示凭证无效或权限不足。
	ErrAccessDenied = errors.New("objectstore: access denied")
	// ErrTransient 表示超时、限流、连接重置等可重试的失败。
	ErrTransient = errors.New("objectstore: transient failure")
)

// Store 是解析器依赖的远端对象存储抽象，任何满足该约定的实现都可以替换。
type Store interface {
	// GetObject 打开对象并返回正文，调用方负责关闭 Reader。
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)

	// HeadObject 只返回对象元数据，用于判断对象是否可解析。
	HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// ObjectInfo 描述远端对象的元数据，字段缺失时保持零值。
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// IsTransient 判断错误是否值得重试。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isTransportError(err)
}

// isTransportError 识别网络层失败（连接重置、超时、读到一半断开）。
func isTransportError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
