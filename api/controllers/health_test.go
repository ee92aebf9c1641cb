package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error {
	return p.err
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	resp := httptest.NewRecorder()
	HealthLive(cfg)(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Storefront-Env"); got != "dev" {
		t.Fatalf("expected env header dev got %q", got)
	}
}

func TestHealthReadyAllUp(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	deps := map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}, "gcs": nil}
	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, deps)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"db":"up"`) {
		t.Fatalf("expected db check in body: %s", resp.Body.String())
	}
}

func TestHealthReadyReportsDownDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	deps := map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}}
	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, deps)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"redis":"down"`) {
		t.Fatalf("expected redis down in body: %s", resp.Body.String())
	}
}
