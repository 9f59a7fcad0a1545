package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/vgate/vgate/internal/server"
)

// Forwarder 将原始请求原样透传到 FallbackOrigin，并把响应逐字返回给调用方。
// 透传是兜底路径：解析失败时的最终表现应等同于本服务不存在。
type Forwarder struct {
	client *http.Client
	origin *url.URL
	logger *logrus.Logger
}

// NewForwarder 构造透传转发器，origin 必须是不带路径的 http/https Origin。
func NewForwarder(client *http.Client, origin *url.URL, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		client: client,
		origin: origin,
		logger: logger,
	}
}

// Forward 实现 server.Passthrough，转发方法、路径、查询串、头与正文。
func (f *Forwarder) Forward(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	req, err := f.buildFallbackRequest(c)
	if err != nil {
		f.logResult(c, requestID, 0, started, err)
		return f.writeError(c, requestID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logResult(c, requestID, 0, started, err)
		return f.writeError(c, requestID)
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		f.logResult(c, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	f.logResult(c, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("passthrough stream failed: %v", err))
	}
	return nil
}

func (f *Forwarder) buildFallbackRequest(c fiber.Ctx) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	uri := c.Request().URI()
	relative := &url.URL{Path: string(uri.Path())}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	target := f.origin.ResolveReference(relative)

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Host = target.Host
	req.Header.Set("Host", target.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())

	return req, nil
}

func (f *Forwarder) writeError(c fiber.Ctx, requestID string) error {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "fallback_failed"})
}

func (f *Forwarder) logResult(c fiber.Ctx, requestID string, status int, started time.Time, err error) {
	fields := logrus.Fields{
		"action":          "passthrough",
		"path":            string(c.Request().URI().Path()),
		"fallback":        f.origin.String(),
		"fallback_status": status,
		"elapsed_ms":      time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		f.logger.WithFields(fields).Error("passthrough_failed")
		return
	}
	f.logger.WithFields(fields).Info("passthrough_complete")
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
