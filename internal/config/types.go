package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"10m" 或纯数字秒值等配置写法。
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

// PackagePlaceholder 是 UpstreamTemplate 中代表包名的占位符。
const PackagePlaceholder = "{package}"

// 支持的缓存后端标识。
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// ServiceOrigin 是重定向目标的基础 Origin，亦是畸形路径的兜底落点。
	ServiceOrigin string `mapstructure:"ServiceOrigin"`
	// UpstreamTemplate 声明上游 registry 的查询地址，必须包含 {package} 占位符。
	// 是否带组织命名空间完全由该模板决定，代码不做任何假设。
	UpstreamTemplate string `mapstructure:"UpstreamTemplate"`
	// FallbackOrigin 接收解析失败时透传的原始请求。
	FallbackOrigin string `mapstructure:"FallbackOrigin"`

	CacheBackend    string   `mapstructure:"CacheBackend"`
	RedisAddr       string   `mapstructure:"RedisAddr"`
	RedisPassword   string   `mapstructure:"RedisPassword"`
	RedisDB         int      `mapstructure:"RedisDB"`
	CacheTTL        Duration `mapstructure:"CacheTTL"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// UpstreamURL 将包名代入模板得到最终查询地址。包名按原样代入，不做归一化。
func (g GlobalConfig) UpstreamURL(pkg string) string {
	return strings.ReplaceAll(g.UpstreamTemplate, PackagePlaceholder, pkg)
}

// CacheTTLValue 返回缓存条目生效的 TTL。
func (g GlobalConfig) CacheTTLValue() time.Duration {
	return g.CacheTTL.DurationValue()
}
