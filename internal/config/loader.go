package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// RegionOverrideEnv 优先于配置文件中的 Store.Region，避免 SDK 额外探测 bucket 所在区域。
const RegionOverrideEnv = "HXLORIS_S3_REGION"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.BindEnv("Store.Region", RegionOverrideEnv); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyStoreDefaults(&cfg.Store)
	for i := range cfg.BucketMap {
		normalizeBucketMapping(&cfg.BucketMap[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("FetchTimeout", "10s")
	v.SetDefault("MaxAttempts", 3)
	v.SetDefault("InitialBackoff", "200ms")
	v.SetDefault("Store.Backend", "s3")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5080
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(10 * time.Second)
	}
	if g.MaxAttempts == 0 {
		g.MaxAttempts = 3
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(200 * time.Millisecond)
	}
	g.RulesExtension = strings.TrimPrefix(strings.TrimSpace(g.RulesExtension), ".")
	g.DefaultFormat = strings.ToLower(strings.TrimSpace(g.DefaultFormat))
}

// applyStoreDefaults 在启动阶段一次性读取环境中的区域配置，请求期间不再访问环境变量。
func applyStoreDefaults(s *StoreConfig) {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = "s3"
	}
	s.Region = strings.TrimSpace(s.Region)
	if s.Region == "" {
		s.Region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
}

func normalizeBucketMapping(m *BucketMapping) {
	m.Placeholder = strings.TrimSpace(m.Placeholder)
	m.Bucket = strings.TrimSpace(m.Bucket)
	m.KeyPrefix = strings.Trim(strings.TrimSpace(m.KeyPrefix), "/")
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
