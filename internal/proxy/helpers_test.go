package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lazier-docs/lazier-docs/internal/cache"
	"github.com/lazier-docs/lazier-docs/internal/logging"
)

const testShell = `<html><body><script>render("${MD_TEXT}")</script></body></html>`

type upstreamStub struct {
	server *httptest.Server

	mu     sync.Mutex
	files  map[string]string
	hits   map[string]int
	failed map[string]bool
	delay  time.Duration
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{
		files: map[string]string{
			"/site/":              testShell,
			"/site/index.html":    testShell,
			"/site/lazierDocs.js": "console.log('lazier')",
			"/site/sw.js":         "self.addEventListener('fetch', () => {})",
			"/site/guide.md":      "# Guide",
			"/site/a.md":          "# A",
			"/site/b.md":          "# B",
			"/site/app.css":       "body{}",
		},
		hits:   map[string]int{},
		failed: map[string]bool{},
	}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	body, ok := s.files[r.URL.Path]
	failed := s.failed[r.URL.Path]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failed {
		http.Error(w, "boom", http.StatusBadGateway)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	http.ServeContent(w, r, r.URL.Path, time.Time{}, strings.NewReader(body))
}

func (s *upstreamStub) base(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(s.server.URL + "/site/")
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	return u
}

func (s *upstreamStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *upstreamStub) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func (s *upstreamStub) setFailed(path string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[path] = failed
}

func newTestStorage(t *testing.T) cache.Storage {
	t.Helper()
	storage, err := cache.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func defaultManifest() []string {
	return []string{"", "index.html", "lazierDocs.js", "sw.js"}
}

func newTestHandler(t *testing.T, base *url.URL, storage cache.Storage, keys []string) *Handler {
	t.Helper()
	return newTestHandlerWith(t, base, storage, keys, logging.Discard())
}

func newTestHandlerWith(t *testing.T, base *url.URL, storage cache.Storage, keys []string, logger *logrus.Logger) *Handler {
	t.Helper()
	h, err := NewHandler(Options{
		Upstream:         base,
		CacheName:        "test-cache-v1",
		Storage:          storage,
		Fetcher:          NewHTTPFetcher(&http.Client{Timeout: 5 * time.Second}),
		Manifest:         keys,
		Rules:            Rules{APISegment: "/SWAPI/", MarkdownSuffix: ".md"},
		Placeholder:      "${MD_TEXT}",
		FetchConcurrency: 4,
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	t.Cleanup(h.Wait)
	return h
}

func serveGet(t *testing.T, h *Handler, path string) (*cache.Snapshot, Outcome) {
	t.Helper()
	return h.Serve(context.Background(), h.NewRequest(http.MethodGet, path, "", nil, nil))
}

func seedStore(t *testing.T, storage cache.Storage, name, key, body string) {
	t.Helper()
	store, err := storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	snap := cache.NewSnapshot(http.StatusOK, http.Header{"Content-Type": []string{"text/plain"}}, []byte(body))
	if err := store.Put(context.Background(), key, snap); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}
