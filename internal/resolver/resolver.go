package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vgate/vgate/internal/cache"
)

// Source 标记版本号的来源。
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Reason 枚举解析失败的原因，供日志与测试独立断言。
type Reason string

const (
	ReasonUpstreamError  Reason = "upstream_error"
	ReasonUpstreamStatus Reason = "upstream_status"
	ReasonVersionMissing Reason = "version_missing"
)

// Resolution 是一次解析的显式结果。Resolved 为 true 时 Version 必定非空，
// Source 标记命中层；为 false 时 Reason 说明失败原因。
type Resolution struct {
	Resolved bool
	Version  string
	Source   Source
	Reason   Reason
	// UpstreamStatus 在 Reason 为 upstream_status 时记录上游状态码。
	UpstreamStatus int
}

// Resolver 按 “缓存 → 上游” 的顺序解析包名对应的版本，
// 上游命中后以配置的 TTL 回写缓存。每次解析至多一次缓存读、
// 一次缓存写、一次上游请求，无重试。
type Resolver struct {
	store    cache.Store
	registry *RegistryClient
	ttl      time.Duration
	logger   *logrus.Logger
}

// NewResolver 构造解析器。ttl 用于上游命中后的缓存回写。
func NewResolver(store cache.Store, registry *RegistryClient, ttl time.Duration, logger *logrus.Logger) *Resolver {
	return &Resolver{
		store:    store,
		registry: registry,
		ttl:      ttl,
		logger:   logger,
	}
}

// Resolve 解析包名对应的版本号。缓存异常降级为未命中，
// 缓存回写失败不影响本次解析结果，两者均只记录日志。
func (r *Resolver) Resolve(ctx context.Context, pkg string) Resolution {
	cached, err := r.store.Get(ctx, pkg)
	switch {
	case err == nil && cached != "":
		return Resolution{Resolved: true, Version: cached, Source: SourceCache}
	case err == nil || errors.Is(err, cache.ErrNotFound):
		// 未命中，走上游
	default:
		r.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache_get", "package": pkg}).
			Warn("cache_get_failed")
	}

	version, err := r.registry.LatestVersion(ctx, pkg)
	if err != nil {
		return r.unresolved(pkg, err)
	}

	if putErr := r.store.Put(ctx, pkg, version, r.ttl); putErr != nil {
		r.logger.WithError(putErr).
			WithFields(logrus.Fields{"action": "cache_put", "package": pkg}).
			Warn("cache_put_failed")
	}

	return Resolution{Resolved: true, Version: version, Source: SourceUpstream}
}

func (r *Resolver) unresolved(pkg string, err error) Resolution {
	result := Resolution{Reason: ReasonUpstreamError}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		result.Reason = ReasonUpstreamStatus
		result.UpstreamStatus = statusErr.StatusCode
	case errors.Is(err, ErrVersionMissing):
		result.Reason = ReasonVersionMissing
	}

	fields := logrus.Fields{
		"action":  "resolve",
		"package": pkg,
		"reason":  string(result.Reason),
	}
	if result.UpstreamStatus != 0 {
		fields["upstream_status"] = result.UpstreamStatus
	}
	r.logger.WithError(err).WithFields(fields).Warn("resolve_failed")

	return result
}
