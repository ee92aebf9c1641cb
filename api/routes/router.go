package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cancellationcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cancellations"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	refundcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/refunds"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cancellations"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/refunds"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// RedisClient is the slice of the redis client the API edge needs.
type RedisClient interface {
	redis.IdempotencyStore
	redis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Params groups everything the router wires into handlers.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer

	DB    controllers.Pinger
	Redis RedisClient
	GCS   controllers.Pinger

	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Cancellations cancellations.Service
	Refunds       refunds.Service
	Gateway       payments.Gateway

	WebhookService *razorpaywebhook.Service
	WebhookGuard   *razorpaywebhook.DeliveryGuard
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy("write", cfg.HTTP.RateLimitWindow, cfg.HTTP.WriteRateLimit)
	maxUploadBytes := int64(cfg.HTTP.MaxUploadMB) << 20

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": pingerOrNil(p.Redis),
			"gcs":   p.GCS,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(p.WebhookService, p.Gateway, p.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Get("/orders", ordercontrollers.List(p.Orders, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(p.Orders, logg))
		r.Get("/orders/{orderId}/cancellation", cancellationcontrollers.GetForOrder(p.Cancellations, logg))
		r.Get("/cancellations", cancellationcontrollers.ListMine(p.Cancellations, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(writePolicy, p.Redis, logg))
			r.Post("/checkout", controllers.Checkout(p.Checkout, logg))
			r.Post("/checkout/{reference}/commit", controllers.CheckoutCommit(p.Checkout, logg))
			r.Post("/checkout/{reference}/abandon", controllers.CheckoutAbandon(p.Checkout, logg))
			r.Post("/orders/{orderId}/cancellation", cancellationcontrollers.Create(p.Cancellations, maxUploadBytes, logg))
			r.Post("/cancellations/{requestId}/evidence", cancellationcontrollers.AttachEvidence(p.Cancellations, maxUploadBytes, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.AdminList(p.Orders, logg))
			r.Post("/{orderId}/status", ordercontrollers.AdminTransition(p.Orders, logg))
			r.Post("/{orderId}/reconcile", ordercontrollers.AdminReconcile(p.Orders, logg))
		})
		r.Route("/cancellations", func(r chi.Router) {
			r.Get("/", cancellationcontrollers.AdminList(p.Cancellations, logg))
			r.Get("/{requestId}", cancellationcontrollers.AdminGet(p.Cancellations, logg))
			r.Post("/{requestId}/approve", cancellationcontrollers.AdminApprove(p.Cancellations, logg))
			r.Post("/{requestId}/reject", cancellationcontrollers.AdminReject(p.Cancellations, logg))
		})
		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", refundcontrollers.AdminList(p.Refunds, logg))
			r.Get("/{refundId}", refundcontrollers.AdminGet(p.Refunds, logg))
			r.Post("/{refundId}/retry", refundcontrollers.AdminRetry(p.Refunds, logg))
		})
	})

	return r
}

func pingerOrNil(client RedisClient) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}
