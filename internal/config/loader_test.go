package config

import (
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
CacheRoot = "./cache"
FetchTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsPlainSecondDurations(t *testing.T) {
	cfg := `
CacheRoot = "./cache"
FetchTimeout = 3
`
	path := writeTempConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := loaded.Global.FetchTimeout.DurationValue(); got != 3*time.Second {
		t.Fatalf("纯数字应按秒解析，得到 %s", got)
	}
}

func TestLoadRegionFromEnvironment(t *testing.T) {
	t.Setenv(RegionOverrideEnv, "")
	t.Setenv("AWS_REGION", "eu-west-1")
	path := writeTempConfig(t, `CacheRoot = "./cache"`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Store.Region != "eu-west-1" {
		t.Fatalf("Region 未设置时应读取 AWS_REGION，得到 %q", loaded.Store.Region)
	}
}

func TestLoadRegionOverrideWins(t *testing.T) {
	t.Setenv(RegionOverrideEnv, "ap-southeast-2")
	t.Setenv("AWS_REGION", "eu-west-1")

	loaded, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Store.Region != "ap-southeast-2" {
		t.Fatalf("覆盖变量应优先于配置文件，得到 %q", loaded.Store.Region)
	}
}
