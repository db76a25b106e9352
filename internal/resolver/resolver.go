package resolver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hxloris/hxloris/internal/cache"
	"github.com/hxloris/hxloris/internal/identifier"
	"github.com/hxloris/hxloris/internal/imageformat"
	"github.com/hxloris/hxloris/internal/logging"
	"github.com/hxloris/hxloris/internal/objectstore"
)

const (
	defaultFetchTimeout   = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
)

// ImageResolver 是宿主依赖的唯一入口，测试中可以替换为假实现。
type ImageResolver interface {
	Resolve(ctx context.Context, identifier string) (*Result, error)
	IsResolvable(ctx context.Context, identifier string) bool
}

// Result 是一次成功解析的结果。LocalPath 指向的文件在返回时已完整写入。
type Result struct {
	Identifier string             `json:"identifier"`
	LocalPath  string             `json:"local_path"`
	Format     imageformat.Format `json:"format"`
	Bucket     string             `json:"bucket"`
	Key        string             `json:"key"`
	CacheHit   bool               `json:"cache_hit"`
	RulesPath  string             `json:"rules_path,omitempty"`
}

// Options 组装解析器依赖。Store 与 Cache 必填，其余字段为零值时使用默认值。
type Options struct {
	Store          objectstore.Store
	Cache          cache.Store
	BucketMap      identifier.BucketMap
	Checker        *identifier.Checker
	Logger         *logrus.Logger
	Metrics        *Metrics
	FetchTimeout   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	DefaultFormat  imageformat.Format
	RulesExtension string
}

// Resolver 负责“缓存命中 → 合并回源 → 原子写缓存”的全流程。
// 同一标识符的并发回源通过 singleflight 合并，不同标识符之间互不阻塞。
type Resolver struct {
	store          objectstore.Store
	cache          cache.Store
	bucketMap      identifier.BucketMap
	checker        *identifier.Checker
	log            *logrus.Entry
	metrics        *Metrics
	fetchTimeout   time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	defaultFormat  imageformat.Format
	rulesExt       string

	group singleflight.Group
}

var _ ImageResolver = (*Resolver)(nil)

// New 校验依赖并填充默认值。
func New(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, errors.New("object store is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache store is required")
	}

	r := &Resolver{
		store:          opts.Store,
		cache:          opts.Cache,
		bucketMap:      opts.BucketMap,
		checker:        opts.Checker,
		log:            logging.Component(opts.Logger, "resolver"),
		metrics:        opts.Metrics,
		fetchTimeout:   opts.FetchTimeout,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		defaultFormat:  opts.DefaultFormat,
		rulesExt:       strings.TrimPrefix(opts.RulesExtension, "."),
	}
	if r.fetchTimeout <= 0 {
		r.fetchTimeout = defaultFetchTimeout
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.initialBackoff <= 0 {
		r.initialBackoff = defaultInitialBackoff
	}
	return r, nil
}

// Resolve 返回标识符对应的本地文件路径与格式。
// 调用方 ctx 只约束等待过程：ctx 取消后本次调用立即返回，进行中的回源继续完成，
// 结果留给其他等待者与后续请求。
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Result, error) {
	ident, loc, err := r.prepare(raw)
	if err != nil {
		r.metrics.observeResolve("error")
		r.log.WithField("identifier", raw).WithError(err).Warn("identifier_rejected")
		return nil, err
	}

	if result, ok := r.lookup(ctx, ident, loc); ok {
		r.metrics.observeResolve("hit")
		r.log.WithFields(logging.ResolveFields(ident, loc.Bucket, loc.Key, true)).Debug("cache_hit")
		return result, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(ident, func() (interface{}, error) {
		return r.populate(fetchCtx, ident, loc)
	})

	select {
	case <-ctx.Done():
		r.metrics.observeResolve("error")
		return nil, &ResolutionError{
			Kind:       KindUnavailable,
			Identifier: ident,
			Bucket:     loc.Bucket,
			Key:        loc.Key,
			Err:        ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			r.metrics.observeResolve("error")
			return nil, res.Err
		}
		result := *res.Val.(*Result)
		if result.CacheHit {
			r.metrics.observeResolve("hit")
		} else {
			r.metrics.observeResolve("fetched")
		}
		return &result, nil
	}
}

// IsResolvable 判断标识符能否解析：缓存命中直接返回 true，否则对远端做一次 Head。
func (r *Resolver) IsResolvable(ctx context.Context, raw string) bool {
	ident, loc, err := r.prepare(raw)
	if err != nil {
		return false
	}
	if _, ok := r.lookup(ctx, ident, loc); ok {
		return true
	}
	if loc.Bucket == "" || loc.Key == "" {
		return false
	}

	headCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	if _, err := r.store.HeadObject(headCtx, loc.Bucket, loc.Key); err != nil {
		r.log.WithFields(logging.ResolveFields(ident, loc.Bucket, loc.Key, false)).
			WithError(err).
			Warn("head_failed")
		return false
	}
	return true
}

// prepare 解码并校验标识符，随后完成 bucket/key 映射。
func (r *Resolver) prepare(raw string) (string, identifier.Location, error) {
	ident, err := identifier.Normalize(raw)
	if err != nil {
		return "", identifier.Location{}, &ResolutionError{Kind: KindInvalidIdentifier, Identifier: raw, Err: err}
	}
	if !r.checker.Allowed(ident) {
		return "", identifier.Location{}, &ResolutionError{
			Kind:       KindInvalidIdentifier,
			Identifier: ident,
			Err:        fmt.Errorf("%w: not allowed by ident regex", identifier.ErrInvalid),
		}
	}
	loc, err := identifier.Map(ident, r.bucketMap)
	if err != nil {
		return "", identifier.Location{}, &ResolutionError{Kind: KindInvalidIdentifier, Identifier: ident, Err: err}
	}
	return ident, loc, nil
}

// lookup 检查缓存，命中时从文件头判定格式。读取失败按未命中处理，交给回源路径兜底。
func (r *Resolver) lookup(ctx context.Context, ident string, loc identifier.Location) (*Result, bool) {
	cached, err := r.cache.Get(ctx, cache.Locator{Identifier: ident})
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) && ctx.Err() == nil {
			r.log.WithFields(logging.ResolveFields(ident, loc.Bucket, loc.Key, false)).
				WithError(err).
				Warn("cache_get_failed")
		}
		return nil, false
	}
	defer cached.Reader.Close()

	format, err := imageformat.DetectReader(cached.Reader)
	if err != nil {
		r.log.WithFields(logging.ResolveFields(ident, loc.Bucket, loc.Key, true)).
			WithError(err).
			Warn("cache_read_failed")
		return nil, false
	}

	return &Result{
		Identifier: ident,
		LocalPath:  cached.Entry.FilePath,
		Format:     r.formatOrDefault(format),
		Bucket:     loc.Bucket,
		Key:        loc.Key,
		CacheHit:   true,
		RulesPath:  r.cachedRulesPath(ctx, ident),
	}, true
}

// populate 在 singleflight 内执行，同一标识符同一时刻只会有一个 populate。
func (r *Resolver) populate(ctx context.Context, ident string, loc identifier.Location) (*Result, error) {
	// 上一轮合并刚结束或其它进程已写入时，这里直接命中。
	if result, ok := r.lookup(ctx, ident, loc); ok {
		return result, nil
	}

	fields := logging.ResolveFields(ident, loc.Bucket, loc.Key, false)
	if loc.Bucket == "" || loc.Key == "" {
		err := &ResolutionError{
			Kind:       KindNotFound,
			Identifier: ident,
			Bucket:     loc.Bucket,
			Key:        loc.Key,
			Err:        errors.New("identifier does not address an object"),
		}
		r.log.WithFields(fields).WithField("kind", err.Kind).Warn("fetch_failed")
		return nil, err
	}

	done := r.metrics.fetchStarted()
	started := time.Now()

	entry, attempts, err := r.fetch(ctx, ident, loc)
	if err != nil {
		resErr := &ResolutionError{
			Kind:       classify(err),
			Identifier: ident,
			Bucket:     loc.Bucket,
			Key:        loc.Key,
			Err:        err,
		}
		done(string(resErr.Kind))
		r.log.WithFields(fields).
			WithFields(logrus.Fields{"kind": resErr.Kind, "attempts": attempts}).
			WithError(err).
			Warn("fetch_failed")
		return nil, resErr
	}

	format, err := imageformat.DetectFile(entry.FilePath)
	if err != nil {
		done(string(KindCacheWrite))
		return nil, &ResolutionError{Kind: KindCacheWrite, Identifier: ident, Bucket: loc.Bucket, Key: loc.Key, Err: err}
	}
	done("success")

	result := &Result{
		Identifier: ident,
		LocalPath:  entry.FilePath,
		Format:     r.formatOrDefault(format),
		Bucket:     loc.Bucket,
		Key:        loc.Key,
		RulesPath:  r.fetchRules(ctx, ident, loc),
	}

	r.log.WithFields(fields).WithFields(logrus.Fields{
		"attempts":   attempts,
		"size_bytes": entry.SizeBytes,
		"format":     result.Format.String(),
		"local_path": entry.FilePath,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("fetch_completed")

	return result, nil
}

func (r *Resolver) formatOrDefault(format imageformat.Format) imageformat.Format {
	if format == imageformat.Unknown {
		return r.defaultFormat
	}
	return format
}

// classify 把各层的哨兵错误折叠成对外的失败分类。
func classify(err error) Kind {
	switch {
	case errors.Is(err, cache.ErrWrite):
		return KindCacheWrite
	case errors.Is(err, objectstore.ErrNotFound), errors.Is(err, cache.ErrEmptyBody):
		return KindNotFound
	case errors.Is(err, objectstore.ErrAccessDenied):
		return KindAccessDenied
	default:
		return KindUnavailable
	}
}

// rulesKey 返回与图片同目录、同主文件名的授权规则对象 key。
func rulesKey(key, ext string) string {
	dir, base := path.Split(key)
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	return dir + base + "." + ext
}

func (r *Resolver) rulesVariant() string {
	return "rules." + r.rulesExt
}

func (r *Resolver) cachedRulesPath(ctx context.Context, ident string) string {
	if r.rulesExt == "" {
		return ""
	}
	cached, err := r.cache.Get(ctx, cache.Locator{Identifier: ident, Variant: r.rulesVariant()})
	if err != nil {
		return ""
	}
	cached.Reader.Close()
	return cached.Entry.FilePath
}
