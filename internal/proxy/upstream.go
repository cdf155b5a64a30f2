package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/lazier-docs/lazier-docs/internal/cache"
	"github.com/lazier-docs/lazier-docs/internal/server"
)

// Fetcher 向上游发起一次网络请求并返回完整响应快照。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error)
}

// HTTPFetcher 基于共享 http.Client 访问上游。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 创建 HTTPFetcher，client 为空时使用 http.DefaultClient。
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch 复制可透传的请求头后发起请求。非 2xx 响应不视为错误。
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*cache.Snapshot, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	server.CopyHeaders(upstreamReq.Header, req.Header)
	upstreamReq.Header.Del("Host")
	upstreamReq.Header.Del("Content-Length")
	// 缓存需要原始正文，由客户端与代理之间另行协商压缩。
	upstreamReq.Header.Del("Accept-Encoding")
	upstreamReq.Host = req.URL.Host

	resp, err := f.client.Do(upstreamReq)
	if err != nil {
		return nil, err
	}
	return cache.ReadSnapshot(resp)
}
