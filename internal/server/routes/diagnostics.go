package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lazier-docs/lazier-docs/internal/proxy"
	"github.com/lazier-docs/lazier-docs/internal/version"
)

// StatusProvider 由 proxy.Handler 实现，测试中可替换。
type StatusProvider interface {
	Status() proxy.Status
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/version 诊断接口，供运维查询清单缓存状态。
func RegisterDiagnosticsRoutes(app *fiber.App, provider StatusProvider, store string) {
	if app == nil || provider == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(provider.Status(), store))
	})

	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
		})
	})
}

type statusPayload struct {
	CacheName string              `json:"cache_name"`
	Upstream  string              `json:"upstream"`
	Store     string              `json:"store"`
	Cached    int                 `json:"cached"`
	Total     int                 `json:"total"`
	Entries   []proxy.EntryStatus `json:"entries"`
}

func encodeStatus(status proxy.Status, store string) statusPayload {
	cached := 0
	for _, entry := range status.Entries {
		if entry.Cached {
			cached++
		}
	}
	entries := status.Entries
	if entries == nil {
		entries = []proxy.EntryStatus{}
	}
	return statusPayload{
		CacheName: status.CacheName,
		Upstream:  status.Upstream,
		Store:     store,
		Cached:    cached,
		Total:     len(entries),
		Entries:   entries,
	}
}
