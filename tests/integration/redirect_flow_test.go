package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/vgate/vgate/internal/cache"
	"github.com/vgate/vgate/internal/proxy"
	"github.com/vgate/vgate/internal/resolver"
	"github.com/vgate/vgate/internal/server"
)

const serviceOrigin = "https://docs.example.com"

// testStack 聚合一轮黑盒测试所需的组件与观测点。
type testStack struct {
	app           *fiber.App
	store         cache.Store
	upstreamCalls *atomic.Int32
	fallbackCalls *atomic.Int32
}

// newTestStack 用真实组件搭建完整请求链路，上游与兜底源均为 httptest stub。
func newTestStack(t *testing.T, upstreamHandler http.HandlerFunc) *testStack {
	t.Helper()

	upstreamCalls := &atomic.Int32{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		upstreamHandler(w, r)
	}))
	t.Cleanup(upstream.Close)

	fallbackCalls := &atomic.Int32{}
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalls.Add(1)
		w.Header().Set("X-Origin", "fallback")
		_, _ = w.Write([]byte("fallback body"))
	}))
	t.Cleanup(fallback.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := cache.NewMemoryStore()
	registry := resolver.NewRegistryClient(http.DefaultClient, func(pkg string) string {
		return upstream.URL + "/" + pkg + "/latest"
	})
	versionResolver := resolver.NewResolver(store, registry, 600*time.Second, logger)

	fallbackURL, err := url.Parse(fallback.URL)
	if err != nil {
		t.Fatalf("parse fallback url: %v", err)
	}
	forwarder := proxy.NewForwarder(http.DefaultClient, fallbackURL, logger)

	origin, err := url.Parse(serviceOrigin)
	if err != nil {
		t.Fatalf("parse origin: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:        logger,
		Resolver:      versionResolver,
		Fallback:      forwarder,
		ServiceOrigin: origin,
		ListenPort:    5000,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	return &testStack{
		app:           app,
		store:         store,
		upstreamCalls: upstreamCalls,
		fallbackCalls: fallbackCalls,
	}
}

func (s *testStack) get(t *testing.T, target string) *http.Response {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest("GET", target, nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	return resp
}

func TestRedirectFlowCacheMissThenHit(t *testing.T) {
	stack := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"5.0.0"}`))
	})

	// Miss -> upstream fetch -> redirect
	resp := stack.get(t, "http://vgate.local/foo")
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != serviceOrigin+"/foo/v5.0.0/index.html" {
		t.Fatalf("unexpected redirect target: %s", loc)
	}
	if stack.upstreamCalls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", stack.upstreamCalls.Load())
	}

	cached, err := stack.store.Get(context.Background(), "foo")
	if err != nil || cached != "5.0.0" {
		t.Fatalf("缓存未写入: value=%s err=%v", cached, err)
	}

	// Hit -> same outcome, no further upstream traffic
	resp = stack.get(t, "http://vgate.local/foo")
	if loc := resp.Header.Get("Location"); loc != serviceOrigin+"/foo/v5.0.0/index.html" {
		t.Fatalf("重复请求结果不一致: %s", loc)
	}
	if stack.upstreamCalls.Load() != 1 {
		t.Fatalf("缓存命中后不应再请求上游，计数 %d", stack.upstreamCalls.Load())
	}
	if stack.fallbackCalls.Load() != 0 {
		t.Fatalf("成功解析不应触发透传")
	}
}

func TestRedirectFlowPrefilledCacheSkipsUpstream(t *testing.T) {
	stack := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"9.9.9"}`))
	})

	if err := stack.store.Put(context.Background(), "asar", "4.0.1", 600*time.Second); err != nil {
		t.Fatalf("预填充缓存失败: %v", err)
	}

	resp := stack.get(t, "http://vgate.local/asar/latest")
	if loc := resp.Header.Get("Location"); loc != serviceOrigin+"/asar/v4.0.1/index.html" {
		t.Fatalf("unexpected redirect target: %s", loc)
	}
	if stack.upstreamCalls.Load() != 0 {
		t.Fatalf("缓存命中不应请求上游")
	}
}

func TestRedirectFlowPreservesQueryString(t *testing.T) {
	stack := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"4.0.1"}`))
	})

	if err := stack.store.Put(context.Background(), "asar", "4.0.1", 600*time.Second); err != nil {
		t.Fatalf("预填充缓存失败: %v", err)
	}

	resp := stack.get(t, "http://vgate.local/asar/latest?foo=bar")
	if loc := resp.Header.Get("Location"); loc != serviceOrigin+"/asar/v4.0.1/index.html?foo=bar" {
		t.Fatalf("查询串未保留: %s", loc)
	}
}

func TestRedirectFlowBouncesUnmatchedPathToRoot(t *testing.T) {
	stack := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"4.0.1"}`))
	})

	resp := stack.get(t, "http://vgate.local/asar/docs/guide")
	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != serviceOrigin+"/" {
		t.Fatalf("畸形路径应跳转服务根: %s", loc)
	}
	if stack.upstreamCalls.Load() != 0 || stack.fallbackCalls.Load() != 0 {
		t.Fatalf("畸形路径不应触发上游或透传")
	}
}
