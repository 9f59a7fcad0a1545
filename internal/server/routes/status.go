package routes

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/vgate/vgate/internal/config"
	"github.com/vgate/vgate/internal/version"
)

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维确认生效配置。
// 诊断命名空间 /-/ 在主 handler 之前被放行，不参与包名匹配。
func RegisterStatusRoutes(app *fiber.App, cfg *config.Config) {
	if app == nil || cfg == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(cfg.Global))
	})
}

type statusPayload struct {
	Version         string `json:"version"`
	ServiceOrigin   string `json:"service_origin"`
	UpstreamHost    string `json:"upstream_host"`
	FallbackOrigin  string `json:"fallback_origin"`
	CacheBackend    string `json:"cache_backend"`
	CacheTTLSeconds int64  `json:"cache_ttl_seconds"`
	UpstreamTimeout string `json:"upstream_timeout"`
}

func encodeStatus(g config.GlobalConfig) statusPayload {
	return statusPayload{
		Version:         version.Full(),
		ServiceOrigin:   g.ServiceOrigin,
		UpstreamHost:    upstreamHost(g),
		FallbackOrigin:  g.FallbackOrigin,
		CacheBackend:    g.CacheBackend,
		CacheTTLSeconds: int64(g.CacheTTLValue() / time.Second),
		UpstreamTimeout: g.UpstreamTimeout.DurationValue().String(),
	}
}

// upstreamHost 只暴露模板的 Host 部分，避免在诊断接口泄露完整模板。
func upstreamHost(g config.GlobalConfig) string {
	probe := g.UpstreamURL("probe")
	parsed, err := url.Parse(probe)
	if err != nil {
		return ""
	}
	return parsed.Host
}
