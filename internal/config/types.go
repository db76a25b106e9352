package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "10s"、"200ms" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述解析器的全局运行参数，所有请求共享同一份。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	CacheRoot      string   `mapstructure:"CacheRoot"`
	FetchTimeout   Duration `mapstructure:"FetchTimeout"`
	MaxAttempts    int      `mapstructure:"MaxAttempts"`
	InitialBackoff Duration `mapstructure:"InitialBackoff"`
	IdentRegex     string   `mapstructure:"IdentRegex"`
	DefaultFormat  string   `mapstructure:"DefaultFormat"`
	RulesExtension string   `mapstructure:"RulesExtension"`
}

// StoreConfig 描述远端对象存储的连接方式。凭证为空时沿用环境中的默认凭证链。
type StoreConfig struct {
	Backend         string `mapstructure:"Backend"`
	Region          string `mapstructure:"Region"`
	Endpoint        string `mapstructure:"Endpoint"`
	UsePathStyle    bool   `mapstructure:"UsePathStyle"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
}

// HasStaticCredentials 表示配置中是否提供了完整的静态凭证。
func (s StoreConfig) HasStaticCredentials() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// AuthMode 输出 `static` 或 `ambient`，供日志字段使用。
func (s StoreConfig) AuthMode() string {
	if s.HasStaticCredentials() {
		return "static"
	}
	return "ambient"
}

// BucketMapping 把标识符首段的占位符翻译成真实 bucket 与 key 前缀。
type BucketMapping struct {
	Placeholder string `mapstructure:"Placeholder"`
	Bucket      string `mapstructure:"Bucket"`
	KeyPrefix   string `mapstructure:"KeyPrefix"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global    GlobalConfig    `mapstructure:",squash"`
	Store     StoreConfig     `mapstructure:"Store"`
	BucketMap []BucketMapping `mapstructure:"BucketMap"`
}

// Placeholders 返回按配置顺序排列的占位符列表，便于启动日志输出。
func (c *Config) Placeholders() []string {
	if c == nil || len(c.BucketMap) == 0 {
		return nil
	}
	result := make([]string, len(c.BucketMap))
	for i, entry := range c.BucketMap {
		result[i] = fmt.Sprintf("%s:%s", entry.Placeholder, entry.Bucket)
	}
	return result
}
