package proxy

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Request 是与传输层无关的入站请求描述。URL 指向上游绝对地址，同时作为持久缓存的请求标识。
type Request struct {
	Method string
	Path   string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// Key 返回请求标识。
func (r *Request) Key() string {
	u := *r.URL
	u.Fragment = ""
	return u.String()
}

// cacheable 只有 GET 请求会读取或写入缓存。
func (r *Request) cacheable() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// NewRequest 以上游源站补全入站路径。
func (h *Handler) NewRequest(method, rawPath, rawQuery string, header http.Header, body []byte) *Request {
	if method == "" {
		method = http.MethodGet
	}
	if header == nil {
		header = http.Header{}
	}
	clean := cleanPath(rawPath)
	return &Request{
		Method: method,
		Path:   clean,
		URL: &url.URL{
			Scheme:   h.base.Scheme,
			Host:     h.base.Host,
			Path:     clean,
			RawQuery: rawQuery,
		},
		Header: header,
		Body:   body,
	}
}

// cleanPath 规范化路径，保留结尾的 "/"，目录请求的最后一段因此为空。
func cleanPath(raw string) string {
	if raw == "" {
		return "/"
	}
	clean := path.Clean("/" + raw)
	if strings.HasSuffix(raw, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

// resolveKey 将清单中的逻辑文件名映射为上游绝对地址，根别名对应基础地址本身。
func resolveKey(base *url.URL, key string) string {
	u := *base
	u.RawQuery = ""
	u.Fragment = ""
	if key != RootAlias {
		u.Path = base.Path + key
		u.RawPath = ""
	}
	return u.String()
}
