package resolver

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是暴露给宿主的失败分类，宿主据此映射 HTTP 状态码。
type Kind string

const (
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindNotFound          Kind = "not_found"
	KindAccessDenied      Kind = "access_denied"
	KindUnavailable       Kind = "unavailable"
	KindCacheWrite        Kind = "cache_write_error"
)

// ResolutionError 携带标识符与解析出的 bucket/key，便于宿主记录日志。
type ResolutionError struct {
	Kind       Kind
	Identifier string
	Bucket     string
	Key        string
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.Bucket == "" && e.Key == "" {
		return fmt.Sprintf("resolve %q: %s: %v", e.Identifier, e.Kind, e.Err)
	}
	return fmt.Sprintf("resolve %q (%s:%s): %s: %v", e.Identifier, e.Bucket, e.Key, e.Kind, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// KindOf 从错误链中取出失败分类。
func KindOf(err error) (Kind, bool) {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.Kind, true
	}
	return "", false
}

// IsKind 判断错误是否属于指定分类。
func IsKind(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// HTTPStatus 返回失败分类对应的 HTTP 状态码。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidIdentifier:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
