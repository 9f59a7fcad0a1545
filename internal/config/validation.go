package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("CacheTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}

	if err := validateOrigin(g.ServiceOrigin); err != nil {
		return fmt.Errorf("ServiceOrigin: %w", err)
	}
	if err := validateOrigin(g.FallbackOrigin); err != nil {
		return fmt.Errorf("FallbackOrigin: %w", err)
	}
	if err := validateTemplate(g.UpstreamTemplate); err != nil {
		return fmt.Errorf("UpstreamTemplate: %w", err)
	}

	backend := strings.ToLower(strings.TrimSpace(g.CacheBackend))
	switch backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(g.RedisAddr) == "" {
			return newFieldError("RedisAddr", "CacheBackend 为 redis 时不能为空")
		}
	default:
		return newFieldError("CacheBackend", "仅支持 memory|redis")
	}
	c.Global.CacheBackend = backend

	return nil
}

// validateOrigin 要求一个干净的 http/https Origin，不带路径和查询。
func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("不允许携带路径: %s", raw)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("不允许携带查询串: %s", raw)
	}
	return nil
}

func validateTemplate(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	if !strings.Contains(raw, PackagePlaceholder) {
		return fmt.Errorf("必须包含 %s 占位符", PackagePlaceholder)
	}
	probe := strings.ReplaceAll(raw, PackagePlaceholder, "probe")
	parsed, err := url.Parse(probe)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
