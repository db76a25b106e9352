package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/hxloris/internal/cache"
	"github.com/hxloris/hxloris/internal/identifier"
	"github.com/hxloris/hxloris/internal/logging"
	"github.com/hxloris/hxloris/internal/objectstore"
)

// fetch 以带抖动的指数退避重试 fetchOnce，返回写好的缓存条目与实际尝试次数。
func (r *Resolver) fetch(ctx context.Context, ident string, loc identifier.Location) (*cache.Entry, int, error) {
	var (
		entry    *cache.Entry
		attempts int
	)

	operation := func() error {
		attempts++
		r.metrics.observeAttempt()

		got, err := r.fetchOnce(ctx, ident, loc)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		entry = got
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.log.WithFields(logging.ResolveFields(ident, loc.Bucket, loc.Key, false)).
			WithFields(logrus.Fields{"attempt": attempts, "wait_ms": wait.Milliseconds()}).
			WithError(err).
			Warn("fetch_retry")
	}

	if err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify); err != nil {
		return nil, attempts, err
	}
	return entry, attempts, nil
}

// newBackOff 构造总次数为 maxAttempts 的退避策略，不设总耗时上限，由单次超时约束。
func (r *Resolver) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.initialBackoff
	exp.RandomizationFactor = 0.5
	exp.Multiplier = 2
	exp.MaxInterval = 30 * r.initialBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.maxAttempts-1)), ctx)
}

// fetchOnce 执行一次 GetObject 并把正文流式写入缓存，单次尝试受 fetchTimeout 约束。
func (r *Resolver) fetchOnce(ctx context.Context, ident string, loc identifier.Location) (*cache.Entry, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	body, info, err := r.store.GetObject(attemptCtx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var opts cache.PutOptions
	if info != nil {
		opts.ModTime = info.LastModified
	}
	return r.cache.Put(attemptCtx, cache.Locator{Identifier: ident}, body, opts)
}

// retryable 只对传输类故障重试；本地写盘失败与确定性的远端拒绝立即放弃。
func retryable(err error) bool {
	if errors.Is(err, cache.ErrWrite) || errors.Is(err, cache.ErrEmptyBody) {
		return false
	}
	if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrAccessDenied) {
		return false
	}
	return errors.Is(err, cache.ErrSourceRead) || objectstore.IsTransient(err)
}

// fetchRules 下载与图片同名的授权规则旁路文件。失败只记日志，不影响图片解析结果。
func (r *Resolver) fetchRules(ctx context.Context, ident string, loc identifier.Location) string {
	if r.rulesExt == "" {
		return ""
	}
	key := rulesKey(loc.Key, r.rulesExt)
	fields := logging.ResolveFields(ident, loc.Bucket, key, false)

	rulesCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	body, info, err := r.store.GetObject(rulesCtx, loc.Bucket, key)
	if err != nil {
		r.log.WithFields(fields).WithError(err).Debug("rules_fetch_skipped")
		return ""
	}
	defer body.Close()

	var opts cache.PutOptions
	if info != nil {
		opts.ModTime = info.LastModified
	}
	entry, err := r.cache.Put(rulesCtx, cache.Locator{Identifier: ident, Variant: r.rulesVariant()}, body, opts)
	if err != nil {
		r.log.WithFields(fields).WithError(err).Warn("rules_fetch_skipped")
		return ""
	}
	return entry.FilePath
}
