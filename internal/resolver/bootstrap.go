package resolver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hxloris/hxloris/internal/cache"
	"github.com/hxloris/hxloris/internal/config"
	"github.com/hxloris/hxloris/internal/identifier"
	"github.com/hxloris/hxloris/internal/imageformat"
	"github.com/hxloris/hxloris/internal/objectstore"
)

// NewFromConfig 按配置打开对象存储与磁盘缓存，并组装解析器。
// 配置应已通过 config.Load 校验；这里仍会返回构造阶段的错误。
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger, metrics *Metrics) (*Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	store, err := objectstore.Open(ctx, cfg.Store.Backend, StoreOptions(cfg.Store))
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	cacheStore, err := cache.NewStore(cfg.Global.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	checker, err := identifier.NewChecker(cfg.Global.IdentRegex)
	if err != nil {
		return nil, err
	}

	defaultFormat, _ := imageformat.Parse(cfg.Global.DefaultFormat)

	return New(Options{
		Store:          store,
		Cache:          cacheStore,
		BucketMap:      BucketMapFromConfig(cfg.BucketMap),
		Checker:        checker,
		Logger:         logger,
		Metrics:        metrics,
		FetchTimeout:   cfg.Global.FetchTimeout.DurationValue(),
		MaxAttempts:    cfg.Global.MaxAttempts,
		InitialBackoff: cfg.Global.InitialBackoff.DurationValue(),
		DefaultFormat:  defaultFormat,
		RulesExtension: cfg.Global.RulesExtension,
	})
}

// StoreOptions 将 [Store] 配置段转换为后端连接参数。
func StoreOptions(s config.StoreConfig) objectstore.Options {
	return objectstore.Options{
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		UsePathStyle:    s.UsePathStyle,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	}
}

// BucketMapFromConfig 把有序的 [[BucketMap]] 条目转换为查找表。
func BucketMapFromConfig(mappings []config.BucketMapping) identifier.BucketMap {
	entries := make([]identifier.Entry, 0, len(mappings))
	for _, m := range mappings {
		entries = append(entries, identifier.Entry{
			Placeholder: m.Placeholder,
			Bucket:      m.Bucket,
			KeyPrefix:   m.KeyPrefix,
		})
	}
	return identifier.NewBucketMap(entries)
}
