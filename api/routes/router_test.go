package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, counts: map[string]int64{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	default:
		f.values[key] = "1"
	}
	return true, nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeRedis) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeRedis) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

type stubOrders struct {
	internalorders.Service
}

func (stubOrders) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[models.Order], error) {
	return &pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func (stubOrders) List(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[models.Order], error) {
	return &pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 60},
		HTTP: config.HTTPConfig{
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitWindow: time.Minute,
			WriteRateLimit:  20,
			MaxUploadMB:     1,
		},
	}
}

func newTestRouter() http.Handler {
	return NewRouter(Params{
		Config:   testConfig(),
		Gatherer: prometheus.NewRegistry(),
		DB:       stubPinger{},
		Redis:    newFakeRedis(),
		Orders:   stubOrders{},
	})
}

func bearer(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter()
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", path, resp.Code, resp.Body.String())
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCustomerRoutesRequireAuth(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCustomerListOrders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdminRoutesAllowAdmins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleAdmin))
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Idempotency-Key") {
		t.Fatalf("expected idempotency error, got %s", resp.Body.String())
	}
}

func TestWebhookRouteSkipsAuth(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(`{}`)))
	if resp.Code == http.StatusUnauthorized || resp.Code == http.StatusNotFound {
		t.Fatalf("webhook route should be public, got %d", resp.Code)
	}
}
