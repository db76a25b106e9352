package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hxloris/hxloris/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "hxloris.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hxloris.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestResolveFields(t *testing.T) {
	fields := ResolveFields("iiif/a.jpg", "bucket-iiif", "hx/a.jpg", true)
	if fields["identifier"] != "iiif/a.jpg" || fields["bucket"] != "bucket-iiif" || fields["key"] != "hx/a.jpg" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if hit, _ := fields["cache_hit"].(bool); !hit {
		t.Fatalf("cache_hit should be true")
	}
}

func TestInitLoggerEmptyLevelDefaultsToInfo(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{})
	if err != nil {
		t.Fatalf("空级别不应失败: %v", err)
	}
	if logger.GetLevel().String() != "info" {
		t.Fatalf("空级别应为 info，得到 %s", logger.GetLevel())
	}
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("非法级别应返回错误")
	}
}

func TestComponentAddsField(t *testing.T) {
	entry := Component(nil, "resolver")
	if entry.Data["component"] != "resolver" {
		t.Fatalf("component 字段缺失: %v", entry.Data)
	}
}
