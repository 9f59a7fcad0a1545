package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vgate/vgate/internal/cache"
	"github.com/vgate/vgate/internal/config"
	"github.com/vgate/vgate/internal/logging"
	"github.com/vgate/vgate/internal/proxy"
	"github.com/vgate/vgate/internal/resolver"
	"github.com/vgate/vgate/internal/server"
	"github.com/vgate/vgate/internal/server/routes"
	"github.com/vgate/vgate/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_backend"] = cfg.Global.CacheBackend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	serviceOrigin, err := url.Parse(cfg.Global.ServiceOrigin)
	if err != nil {
		fmt.Fprintf(stdErr, "解析 ServiceOrigin 失败: %v\n", err)
		return 1
	}
	fallbackOrigin, err := url.Parse(cfg.Global.FallbackOrigin)
	if err != nil {
		fmt.Fprintf(stdErr, "解析 FallbackOrigin 失败: %v\n", err)
		return 1
	}

	// CLI 启动遵循“配置 → 缓存后端 → 解析器 → Fiber server”顺序，
	// 保证所有请求共享统一的缓存实例与出站 HTTP 客户端。
	store := buildCacheStore(cfg)
	httpClient := server.NewUpstreamClient(cfg)
	registry := resolver.NewRegistryClient(httpClient, cfg.Global.UpstreamURL)
	versionResolver := resolver.NewResolver(store, registry, cfg.Global.CacheTTLValue(), logger)
	forwarder := proxy.NewForwarder(httpClient, fallbackOrigin, logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_backend"] = cfg.Global.CacheBackend
	fields["cache_ttl"] = cfg.Global.CacheTTLValue().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, versionResolver, forwarder, serviceOrigin, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("vgate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 VGATE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("VGATE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// buildCacheStore 根据配置选择缓存后端。
func buildCacheStore(cfg *config.Config) cache.Store {
	if cfg.Global.CacheBackend == config.CacheBackendRedis {
		return cache.NewRedisStore(cfg.Global.RedisAddr, cfg.Global.RedisPassword, cfg.Global.RedisDB)
	}
	return cache.NewMemoryStore()
}

func startHTTPServer(
	cfg *config.Config,
	versionResolver server.VersionResolver,
	forwarder server.Passthrough,
	serviceOrigin *url.URL,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:        logger,
		Resolver:      versionResolver,
		Fallback:      forwarder,
		ServiceOrigin: serviceOrigin,
		ListenPort:    port,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, cfg)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
