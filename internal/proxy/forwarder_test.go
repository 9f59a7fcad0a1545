package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestForwardPassesRequestVerbatim(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotQuery  string
		gotHeader string
		gotBody   []byte
	)
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Origin", "fallback")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("origin says hi"))
	}))
	defer fallback.Close()

	app := newForwarderApp(t, fallback.URL)

	req := httptest.NewRequest("POST", "http://vgate.local/bar/extra?foo=bar", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	if gotMethod != "POST" || gotPath != "/bar/extra" || gotQuery != "foo=bar" {
		t.Fatalf("请求未原样透传: %s %s?%s", gotMethod, gotPath, gotQuery)
	}
	if gotHeader != "1" {
		t.Fatalf("请求头未透传: %q", gotHeader)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("请求体未透传: %q", string(gotBody))
	}

	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("响应状态未逐字返回: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Origin") != "fallback" {
		t.Fatalf("响应头未逐字返回")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "origin says hi" {
		t.Fatalf("响应体未逐字返回: %q", string(body))
	}
}

func TestForwardSetsForwardingHeaders(t *testing.T) {
	var forwardedHost, forwardedProto string
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwardedHost = r.Header.Get("X-Forwarded-Host")
		forwardedProto = r.Header.Get("X-Forwarded-Proto")
	}))
	defer fallback.Close()

	app := newForwarderApp(t, fallback.URL)
	if _, err := app.Test(httptest.NewRequest("GET", "http://vgate.local/bar", nil)); err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	if forwardedHost != "vgate.local" {
		t.Fatalf("X-Forwarded-Host 不符: %s", forwardedHost)
	}
	if forwardedProto == "" {
		t.Fatalf("缺少 X-Forwarded-Proto")
	}
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	var connectionHeader string
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connectionHeader = r.Header.Get("Proxy-Connection")
	}))
	defer fallback.Close()

	app := newForwarderApp(t, fallback.URL)
	req := httptest.NewRequest("GET", "http://vgate.local/bar", nil)
	req.Header.Set("Proxy-Connection", "keep-alive")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}

	if connectionHeader != "" {
		t.Fatalf("hop-by-hop 头不应透传: %q", connectionHeader)
	}
}

func TestForwardAnswersBadGatewayOnTransportFailure(t *testing.T) {
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	fallback.Close()

	app := newForwarderApp(t, fallback.URL)
	resp, err := app.Test(httptest.NewRequest("GET", "http://vgate.local/bar", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "fallback_failed") {
		t.Fatalf("expected fallback_failed error, got %s", string(body))
	}
}

func newForwarderApp(t *testing.T, fallbackURL string) *fiber.App {
	t.Helper()

	origin, err := url.Parse(fallbackURL)
	if err != nil {
		t.Fatalf("parse fallback url: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	forwarder := NewForwarder(http.DefaultClient, origin, logger)
	app := fiber.New()
	app.All("/*", func(c fiber.Ctx) error {
		return forwarder.Forward(c)
	})
	return app
}
