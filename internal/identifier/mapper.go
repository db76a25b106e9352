package identifier

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalid 表示标识符为空、转义非法或不满足允许规则。
var ErrInvalid = errors.New("invalid identifier")

// Entry 描述一个占位符对应的真实 bucket 与 key 前缀。
type Entry struct {
	Placeholder string
	Bucket      string
	KeyPrefix   string
}

// BucketMap 以占位符为键，启动后只读。
type BucketMap map[string]Entry

// NewBucketMap 从有序条目构建查找表，后出现的重复占位符会覆盖先前条目。
func NewBucketMap(entries []Entry) BucketMap {
	if len(entries) == 0 {
		return nil
	}
	m := make(BucketMap, len(entries))
	for _, entry := range entries {
		m[entry.Placeholder] = entry
	}
	return m
}

// Location 是标识符解析出的 bucket + object key，不做持久化。
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Bucket + ":" + l.Key
}

// Map 将标识符拆分为首段与剩余部分，并按 bucket map 翻译成对象位置。
// 只有空标识符会失败；空 bucket/key 交由调用方判定为未找到。
func Map(identifier string, bucketMap BucketMap) (Location, error) {
	if identifier == "" {
		return Location{}, fmt.Errorf("%w: empty identifier", ErrInvalid)
	}

	first, remainder, _ := strings.Cut(identifier, "/")
	if entry, ok := bucketMap[first]; ok {
		return Location{Bucket: entry.Bucket, Key: joinKey(entry.KeyPrefix, remainder)}, nil
	}
	return Location{Bucket: first, Key: remainder}, nil
}

// joinKey 在前缀与剩余部分之间保留恰好一个分隔符；剩余部分为空时不指向任何对象。
func joinKey(prefix, remainder string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return remainder
	}
	remainder = strings.TrimLeft(remainder, "/")
	if remainder == "" {
		return ""
	}
	return prefix + "/" + remainder
}

// Normalize 对宿主传入的原始路径段做百分号解码，解码后的结果用于映射与缓存键。
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalid)
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if decoded == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalid)
	}
	return decoded, nil
}

// Checker 按可选的正则限制可解析的标识符，正则从标识符开头锚定。
type Checker struct {
	re *regexp.Regexp
}

// NewChecker 编译允许规则；pattern 为空时放行所有标识符。
func NewChecker(pattern string) (*Checker, error) {
	if pattern == "" {
		return &Checker{}, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile ident regex: %w", err)
	}
	return &Checker{re: re}, nil
}

// Allowed 返回标识符是否满足允许规则。
func (c *Checker) Allowed(identifier string) bool {
	if c == nil || c.re == nil {
		return true
	}
	return c.re.MatchString(identifier)
}
