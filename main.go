package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/lazier-docs/lazier-docs/internal/cache"
	"github.com/lazier-docs/lazier-docs/internal/config"
	"github.com/lazier-docs/lazier-docs/internal/logging"
	"github.com/lazier-docs/lazier-docs/internal/manifest"
	"github.com/lazier-docs/lazier-docs/internal/proxy"
	"github.com/lazier-docs/lazier-docs/internal/server"
	"github.com/lazier-docs/lazier-docs/internal/server/routes"
	"github.com/lazier-docs/lazier-docs/internal/version"
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
		fields["upstream"] = cfg.Docs.Upstream
		fields["store"] = cfg.StoreSummary()
		fields["manifest"] = len(cfg.Docs.Manifest)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序为“配置 → 持久缓存 → 清单 → 代理处理器 → Fiber server”，
	// 所有请求共享同一个内存索引与缓存实例。
	storage, err := cache.OpenStorage(ctx, cache.Options{
		Driver:      cfg.Global.StoreDriver,
		DSN:         cfg.Global.StoreDSN,
		StoragePath: cfg.Global.StoragePath,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}
	defer storage.Close()

	handler, err := buildProxyHandler(ctx, cfg, storage, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建代理失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["upstream"] = cfg.Docs.Upstream
	fields["cache_name"] = cfg.Docs.CacheName
	fields["store"] = cfg.StoreSummary()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	err = startHTTPServer(ctx, cfg, handler, logger)
	handler.Wait()
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildProxyHandler 组装代理处理器。持久化的清单优先于配置文件中的默认清单。
func buildProxyHandler(ctx context.Context, cfg *config.Config, storage cache.Storage, logger *logrus.Logger) (*proxy.Handler, error) {
	upstream, err := url.Parse(cfg.Docs.Upstream)
	if err != nil {
		return nil, fmt.Errorf("解析上游地址失败: %w", err)
	}

	manifests := manifest.NewFileStore(cfg.Docs.ManifestPath)
	keys, err := manifests.Load(ctx)
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{
			"action": "manifest_load",
			"path":   manifests.Path(),
			"keys":   len(keys),
		}).Info("使用已保存的清单")
	case errors.Is(err, manifest.ErrNotFound):
		keys = cfg.Docs.Manifest
	default:
		logger.WithFields(logrus.Fields{
			"action": "manifest_load",
			"path":   manifests.Path(),
		}).WithError(err).Warn("读取已保存的清单失败，使用配置清单")
		keys = cfg.Docs.Manifest
	}

	return proxy.NewHandler(proxy.Options{
		Upstream:  upstream,
		CacheName: cfg.Docs.CacheName,
		Storage:   storage,
		Fetcher:   proxy.NewHTTPFetcher(server.NewUpstreamClient(cfg)),
		Manifest:  keys,
		Manifests: manifests,
		Rules: proxy.Rules{
			APISegment:     cfg.Docs.APISegment,
			MarkdownSuffix: cfg.Docs.MarkdownSuffix,
		},
		Placeholder:      cfg.Docs.Placeholder,
		FetchConcurrency: cfg.Docs.FetchConcurrency,
		Logger:           logger,
	})
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("lazier-docs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 LAZIER_DOCS_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("LAZIER_DOCS_CONFIG")
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

func startHTTPServer(ctx context.Context, cfg *config.Config, handler *proxy.Handler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, handler, cfg.StoreSummary())

	handler.Warm(ctx)

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止 Fiber 服务")
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
