package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vgate/vgate/internal/resolver"
)

// VersionResolver describes the component that maps package names to version
// strings. It allows injecting fake resolvers during tests.
type VersionResolver interface {
	Resolve(ctx context.Context, pkg string) resolver.Resolution
}

// Passthrough forwards the original request to the fallback origin verbatim.
type Passthrough interface {
	Forward(fiber.Ctx) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger        *logrus.Logger
	Resolver      VersionResolver
	Fallback      Passthrough
	ServiceOrigin *url.URL
	ListenPort    int
}

const contextKeyRequestID = "_vgate_request_id"

// redirectDocPath 是重定向目标末尾的固定文档段。
const redirectDocPath = "index.html"

// NewApp builds a Fiber application that turns each request into exactly one
// of the three terminal responses: versioned redirect, root bounce, or
// pass-through.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("version resolver is required")
	}
	if opts.Fallback == nil {
		return nil, errors.New("fallback handler is required")
	}
	if opts.ServiceOrigin == nil {
		return nil, errors.New("service origin is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recoverer.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return handleRequest(c, opts)
	})

	return app, nil
}

// handleRequest 串联 “路径解析 → 版本解析 → 响应构造” 三步。
func handleRequest(c fiber.Ctx, opts AppOptions) error {
	started := time.Now()
	requestID := RequestID(c)
	path := requestPath(c)

	pkg, ok := resolver.MatchPackagePath(path)
	if !ok {
		return bounceToRoot(c, opts, path, requestID)
	}

	res := resolveSafely(c, opts, pkg)
	if !res.Resolved {
		return opts.Fallback.Forward(c)
	}

	location := buildRedirectTarget(opts.ServiceOrigin, pkg, res.Version, c.Request().URI().QueryString())

	fields := logrus.Fields{
		"action":     "redirect",
		"package":    pkg,
		"version":    res.Version,
		"source":     string(res.Source),
		"cache_hit":  res.Source == resolver.SourceCache,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	opts.Logger.WithFields(fields).Info("redirect_complete")

	return redirect(c, location)
}

// resolveSafely 吞掉解析过程中的意外 panic，使其降级为透传而非 500。
func resolveSafely(c fiber.Ctx, opts AppOptions, pkg string) (res resolver.Resolution) {
	defer func() {
		if r := recover(); r != nil {
			opts.Logger.WithFields(logrus.Fields{
				"action":  "resolve",
				"package": pkg,
				"error":   fmt.Sprintf("panic: %v", r),
			}).Error("resolve_panic")
			res = resolver.Resolution{}
		}
	}()

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return opts.Resolver.Resolve(ctx, pkg)
}

// buildRedirectTarget 拼接版本化重定向地址，并原样保留查询串。
func buildRedirectTarget(origin *url.URL, pkg, version string, rawQuery []byte) string {
	location := fmt.Sprintf("%s/%s/v%s/%s", strings.TrimSuffix(origin.String(), "/"), pkg, version, redirectDocPath)
	if len(rawQuery) > 0 {
		location += "?" + string(rawQuery)
	}
	return location
}

// bounceToRoot 把无法识别的路径 302 到服务根，而不是透传。
func bounceToRoot(c fiber.Ctx, opts AppOptions, path, requestID string) error {
	fields := logrus.Fields{
		"action": "bounce",
		"path":   path,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	opts.Logger.WithFields(fields).Info("path_unmatched")

	return redirect(c, strings.TrimSuffix(opts.ServiceOrigin.String(), "/")+"/")
}

func redirect(c fiber.Ctx, location string) error {
	c.Set(fiber.HeaderLocation, location)
	return c.SendStatus(fiber.StatusFound)
}

// requestContextMiddleware 负责生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	pathVal := string(uri.Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
