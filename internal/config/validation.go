package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hxloris/hxloris/internal/imageformat"
	"github.com/hxloris/hxloris/internal/objectstore"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.MaxAttempts <= 0 {
		return newFieldError("Global.MaxAttempts", "必须大于 0")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.IdentRegex != "" {
		if _, err := regexp.Compile(g.IdentRegex); err != nil {
			return newFieldError("Global.IdentRegex", fmt.Sprintf("无法编译: %v", err))
		}
	}
	if g.DefaultFormat != "" {
		if _, ok := imageformat.Parse(g.DefaultFormat); !ok {
			return newFieldError("Global.DefaultFormat", "未知图片格式: "+g.DefaultFormat)
		}
	}
	if strings.Contains(g.RulesExtension, "/") {
		return newFieldError("Global.RulesExtension", "不允许包含路径分隔符")
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for _, entry := range c.BucketMap {
		if entry.Placeholder == "" {
			return newFieldError("BucketMap[].Placeholder", "不能为空")
		}
		if strings.Contains(entry.Placeholder, "/") {
			return newFieldError(bucketMapField(entry.Placeholder, "Placeholder"), "不允许包含 /")
		}
		if _, exists := seen[entry.Placeholder]; exists {
			return newFieldError(bucketMapField(entry.Placeholder, "Placeholder"), "重复")
		}
		seen[entry.Placeholder] = struct{}{}

		if entry.Bucket == "" {
			return newFieldError(bucketMapField(entry.Placeholder, "Bucket"), "不能为空")
		}
		if strings.Contains(entry.Bucket, "/") {
			return newFieldError(bucketMapField(entry.Placeholder, "Bucket"), "不允许包含 /")
		}
	}

	return nil
}

func (s StoreConfig) validate() error {
	if _, ok := objectstore.Resolve(s.Backend); !ok {
		return newFieldError("Store.Backend", "仅支持 "+strings.Join(objectstore.Keys(), "|"))
	}
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		return newFieldError("Store.AccessKeyID/SecretAccessKey", "必须同时提供或同时留空")
	}
	if s.Endpoint != "" {
		if err := validateEndpoint(s.Endpoint); err != nil {
			return fmt.Errorf("Store.Endpoint: %w", err)
		}
	}
	if s.Backend == "minio" && s.Endpoint == "" {
		return newFieldError("Store.Endpoint", "minio 后端必须配置 Endpoint")
	}
	return nil
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，Endpoint: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("Endpoint 缺少 Host: %s", raw)
	}
	return nil
}
