package paywall

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/magabrotheeeer/paywall/docs"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/account/link"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/billing/webhook"
	checkoutcreate "github.com/magabrotheeeer/paywall/internal/http/handlers/checkout/create"
	entitlementstatus "github.com/magabrotheeeer/paywall/internal/http/handlers/entitlement/status"
	"github.com/magabrotheeeer/paywall/internal/http/handlers/health"
	licensegenerate "github.com/magabrotheeeer/paywall/internal/http/handlers/license/generate"
	licenselist "github.com/magabrotheeeer/paywall/internal/http/handlers/license/list"
	licenseredeem "github.com/magabrotheeeer/paywall/internal/http/handlers/license/redeem"
	licenserevoke "github.com/magabrotheeeer/paywall/internal/http/handlers/license/revoke"
	planslist "github.com/magabrotheeeer/paywall/internal/http/handlers/plans/list"
	trialstart "github.com/magabrotheeeer/paywall/internal/http/handlers/trial/start"
	"github.com/magabrotheeeer/paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/services/billing"
	"github.com/magabrotheeeer/paywall/internal/services/catalog"
	"github.com/magabrotheeeer/paywall/internal/services/checkout"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/license"
	"github.com/magabrotheeeer/paywall/internal/services/linking"
	"github.com/magabrotheeeer/paywall/internal/services/trial"
	"github.com/magabrotheeeer/paywall/internal/storage"
)

// Services собранные сервисы, которые обслуживают маршруты.
type Services struct {
	Store       storage.Store
	Trial       *trial.Service
	Entitlement *entitlement.Service
	License     *license.Service
	Linking     *linking.Service
	Billing     *billing.Service
	Checkout    *checkout.Service
	Catalog     *catalog.Service
}

// RouteOptions настройки доступа к маршрутам.
type RouteOptions struct {
	Verifier     middlewarectx.Verifier
	AdminKeyHash string
	RateLimit    float64
	RateBurst    int
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services, opts RouteOptions) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middlewarectx.Metrics(opts.Metrics),
	)

	limiter := middlewarectx.NewIPRateLimiter(opts.RateLimit, opts.RateBurst)

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook не ограничивается по частоте: провайдер повторяет доставку сам
		r.Post("/billing/webhook", webhook.New(logger, s.Billing).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))

			r.Post("/trial", trialstart.New(logger, s.Trial).ServeHTTP)
			r.Get("/plans", planslist.New(logger, s.Catalog).ServeHTTP)

			// Необязательная аутентификация: аккаунт из токена важнее отпечатка
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.Authenticate(opts.Verifier, logger, false))
				r.Get("/entitlement", entitlementstatus.New(logger, s.Entitlement).ServeHTTP)
				r.Post("/license/redeem", licenseredeem.New(logger, s.License).ServeHTTP)
				r.Post("/checkout", checkoutcreate.New(logger, s.Checkout).ServeHTTP)
			})

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.Authenticate(opts.Verifier, logger, true))
				r.Post("/link", link.New(logger, s.Linking).ServeHTTP)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.AdminOnly(opts.AdminKeyHash, logger))
			r.Post("/licenses", licensegenerate.New(logger, s.License).ServeHTTP)
			r.Get("/licenses", licenselist.New(logger, s.License).ServeHTTP)
			r.Post("/licenses/revoke", licenserevoke.New(logger, s.License).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, s.Store).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
