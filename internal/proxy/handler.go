package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lazier-docs/lazier-docs/internal/cache"
	"github.com/lazier-docs/lazier-docs/internal/logging"
	"github.com/lazier-docs/lazier-docs/internal/manifest"
	"github.com/lazier-docs/lazier-docs/internal/server"
)

// Source 标记响应的来源，写入 X-Lazier-Docs-Source 头与访问日志。
type Source string

const (
	SourceIndex       Source = "index"
	SourceStore       Source = "store"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourceUnavailable Source = "unavailable"
	SourceAPI         Source = "api"
)

// Outcome 描述一次请求的处理路径。
type Outcome struct {
	Route  Route
	Source Source
	Err    error
}

const unavailableMessage = "网络不可用，且无缓存内容"

// Options 配置 Handler。
type Options struct {
	// Upstream 是以 "/" 结尾的文档站点基础地址。
	Upstream         *url.URL
	CacheName        string
	Storage          cache.Storage
	Fetcher          Fetcher
	Manifest         []string
	Manifests        manifest.Store
	Rules            Rules
	Placeholder      string
	FetchConcurrency int
	Logger           *logrus.Logger
}

// Handler 实现缓存优先的请求处理：内存索引 → 持久缓存 → 网络，
// 失败时回退到持久缓存，仍无结果则返回 503。
type Handler struct {
	base        *url.URL
	cacheName   string
	storage     cache.Storage
	fetcher     Fetcher
	manifests   manifest.Store
	rules       Rules
	index       *ResourceIndex
	populator   *Populator
	transformer *MarkdownTransformer
	logger      *logrus.Logger
	tasks       *taskGroup
}

// Validate 校验构建 Handler 所需的依赖。
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Upstream, validation.Required, validation.By(func(value any) error {
			u, _ := value.(*url.URL)
			if u == nil || u.Scheme == "" || u.Host == "" {
				return validation.NewError("proxy.upstream_invalid", "upstream must be an absolute url")
			}
			return nil
		})),
		validation.Field(&o.CacheName, validation.Required),
		validation.Field(&o.Storage, validation.Required),
		validation.Field(&o.Placeholder, validation.Required),
		validation.Field(&o.FetchConcurrency, validation.Min(0)),
	)
}

// NewHandler 校验依赖并组装各组件。
func NewHandler(opts Options) (*Handler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	limit := opts.FetchConcurrency
	if limit <= 0 {
		limit = 1
	}

	base := *opts.Upstream
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	h := &Handler{
		base:      &base,
		cacheName: opts.CacheName,
		storage:   opts.Storage,
		fetcher:   fetcher,
		manifests: opts.Manifests,
		rules:     opts.Rules,
		index:     NewResourceIndex(opts.Manifest),
		logger:    logger,
		tasks:     &taskGroup{logger: logger},
	}
	h.populator = &Populator{
		index:     h.index,
		storage:   h.storage,
		cacheName: h.cacheName,
		base:      h.base,
		fetcher:   fetcher,
		limit:     limit,
		logger:    logger,
	}
	h.transformer = &MarkdownTransformer{
		placeholder: opts.Placeholder,
		shell:       h.shellDocument,
		logger:      logger,
	}
	return h, nil
}

// Index exposes the in-memory resource index.
func (h *Handler) Index() *ResourceIndex { return h.index }

// Populator exposes the population routine.
func (h *Handler) Populator() *Populator { return h.populator }

// Warm 在后台执行一次完整补齐。
func (h *Handler) Warm(ctx context.Context) {
	h.tasks.Go(ctx, "warm", func(ctx context.Context) error {
		h.populator.Populate(ctx)
		return nil
	})
}

// Wait 等待后台缓存写入与补齐任务完成。
func (h *Handler) Wait() {
	h.tasks.Wait()
}

// Serve 分类请求并交给对应的处理路径。它总是返回一个响应。
func (h *Handler) Serve(ctx context.Context, req *Request) (*cache.Snapshot, Outcome) {
	route := h.rules.Classify(req.Path)
	switch route.Kind {
	case KindAdministrativeCall:
		resp := h.dispatch(ctx, route.Operation, req)
		return resp, Outcome{Route: route, Source: SourceAPI}
	case KindMarkdownDocument:
		resp, source, err := h.cacheFirst(ctx, req, h.transformer.Transform)
		return resp, Outcome{Route: route, Source: source, Err: err}
	default:
		resp, source, err := h.cacheFirst(ctx, req, passthrough)
		return resp, Outcome{Route: route, Source: source, Err: err}
	}
}

type postProcessor func(ctx context.Context, snap *cache.Snapshot) *cache.Snapshot

func passthrough(_ context.Context, snap *cache.Snapshot) *cache.Snapshot { return snap }

func (h *Handler) cacheFirst(ctx context.Context, req *Request, post postProcessor) (resp *cache.Snapshot, source Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			resp, source = h.fallback(ctx, req, post, err, debug.Stack())
		}
	}()

	resp, source, err = h.lookupOrFetch(ctx, req, post)
	if err != nil {
		resp, source = h.fallback(ctx, req, post, err, nil)
	}
	return resp, source, err
}

func (h *Handler) lookupOrFetch(ctx context.Context, req *Request, post postProcessor) (*cache.Snapshot, Source, error) {
	if req.cacheable() {
		if snap, source, err := h.lookup(ctx, req); err != nil {
			return nil, "", err
		} else if snap != nil {
			return post(ctx, snap), source, nil
		}
	}

	resp, err := h.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, "", err
	}
	if storable(req, resp) {
		key := req.Key()
		stored := resp.Clone()
		h.tasks.Go(ctx, "cache_put", func(ctx context.Context) error {
			store, err := h.storage.Open(ctx, h.cacheName)
			if err != nil {
				return err
			}
			return store.Put(ctx, key, stored)
		})
	}
	return post(ctx, resp), SourceNetwork, nil
}

// storable 只保存完整的 200 响应；带 Range 的请求与 206 部分内容不会写入缓存。
func storable(req *Request, resp *cache.Snapshot) bool {
	if !req.cacheable() || resp.StatusCode != http.StatusOK {
		return false
	}
	return req.Header.Get("Range") == ""
}

// lookup 先按最后一段路径查询内存索引，必要时触发补齐，再按请求标识查询持久缓存。
func (h *Handler) lookup(ctx context.Context, req *Request) (*cache.Snapshot, Source, error) {
	name := lastSegment(req.Path)
	if h.index.Has(name) {
		snap, ok := h.index.Get(name)
		if !ok {
			h.populator.Populate(ctx)
			snap, ok = h.index.Get(name)
		}
		if ok {
			return snap, SourceIndex, nil
		}
		h.logger.WithFields(logrus.Fields{
			"action": "cache_lookup",
			"key":    name,
		}).Warn("找不到缓存")
	}

	snap, err := h.storage.Match(ctx, req.Key())
	switch {
	case err == nil:
		return snap, SourceStore, nil
	case errors.Is(err, cache.ErrNotFound):
		return nil, "", nil
	default:
		return nil, "", err
	}
}

// fallback 在处理失败后最后一次查询持久缓存。
func (h *Handler) fallback(ctx context.Context, req *Request, post postProcessor, cause error, stack []byte) (*cache.Snapshot, Source) {
	if stack == nil {
		stack = debug.Stack()
	}
	h.logger.WithFields(logrus.Fields{
		"action": "cache_first",
		"url":    req.Key(),
	}).WithError(cause).Error("请求处理异常")

	if req.cacheable() {
		if snap, err := h.storage.Match(ctx, req.Key()); err == nil {
			return post(ctx, snap), SourceFallback
		}
	}
	return unavailable(cause, stack), SourceUnavailable
}

func unavailable(cause error, stack []byte) *cache.Snapshot {
	body := unavailableMessage + "\n" + cause.Error() + "\n" + string(stack)
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return cache.NewSnapshot(http.StatusServiceUnavailable, header, []byte(body))
}

// shellDocument 返回外壳页面：优先内存索引，其次持久缓存。
func (h *Handler) shellDocument(ctx context.Context) (*cache.Snapshot, error) {
	if snap, ok := h.index.Get(IndexDocument); ok {
		return snap, nil
	}
	snap, err := h.storage.Match(ctx, resolveKey(h.base, IndexDocument))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrShellMissing
	}
	return snap, err
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	uri := c.Request().URI()
	req := h.NewRequest(
		c.Method(),
		string(uri.Path()),
		string(uri.QueryString()),
		requestHeaders(c),
		append([]byte(nil), c.Body()...),
	)
	resp, outcome := h.Serve(ctx, req)
	h.logResult(req, resp, outcome, requestID, started)
	return writeSnapshot(c, req, resp, outcome.Source, requestID)
}

func requestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func writeSnapshot(c fiber.Ctx, req *Request, resp *cache.Snapshot, source Source, requestID string) error {
	for key, values := range resp.Header {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
	c.Set("X-Lazier-Docs-Source", string(source))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)
	if req.Method == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body())
}

func (h *Handler) logResult(req *Request, resp *cache.Snapshot, outcome Outcome, requestID string, started time.Time) {
	fields := logging.RequestFields(
		req.Method,
		req.Path,
		outcome.Route.Kind.String(),
		string(outcome.Source),
		outcome.Source == SourceIndex || outcome.Source == SourceStore || outcome.Source == SourceFallback,
	)
	fields["status"] = resp.StatusCode
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if outcome.Route.Operation != "" {
		fields["operation"] = outcome.Route.Operation
	}
	entry := h.logger.WithFields(fields)
	if outcome.Err != nil {
		entry.WithError(outcome.Err).Warn("proxy_degraded")
		return
	}
	entry.Info("proxy_complete")
}
