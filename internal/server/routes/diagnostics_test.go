package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/lazier-docs/lazier-docs/internal/proxy"
	"github.com/lazier-docs/lazier-docs/internal/version"
)

type staticStatus proxy.Status

func (s staticStatus) Status() proxy.Status { return proxy.Status(s) }

func TestStatusRouteReportsEntries(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticStatus{
		CacheName: "docs-v1",
		Upstream:  "https://docs.example.com/",
		Entries: []proxy.EntryStatus{
			{Key: "index.html", Cached: true, StatusCode: 200, SizeBytes: 12},
			{Key: "sw.js"},
		},
	}, "fs:/tmp/cache")

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var payload statusPayload
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v (%s)", err, body)
	}
	if payload.CacheName != "docs-v1" || payload.Store != "fs:/tmp/cache" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Cached != 1 || payload.Total != 2 {
		t.Fatalf("expected 1/2 cached, got %d/%d", payload.Cached, payload.Total)
	}
	if payload.Entries[1].Key != "sw.js" || payload.Entries[1].Cached {
		t.Fatalf("unexpected second entry %+v", payload.Entries[1])
	}
}

func TestVersionRoute(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticStatus{}, "fs")

	resp, err := app.Test(httptest.NewRequest("GET", "/-/version", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["version"] != version.Version {
		t.Fatalf("unexpected version payload %v", payload)
	}
}

func TestEncodeStatusUsesEmptyEntries(t *testing.T) {
	payload := encodeStatus(proxy.Status{}, "sqlite")
	if payload.Entries == nil || payload.Total != 0 {
		t.Fatalf("expected empty entries slice, got %+v", payload)
	}
}
