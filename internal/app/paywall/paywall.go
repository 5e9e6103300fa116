// Package paywall собирает HTTP-приложение: хранилище, кэш каталога, публикацию
// событий, сервисы и маршруты.
package paywall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/paywall/internal/cache"
	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/hasher"
	"github.com/magabrotheeeer/paywall/internal/lib/jwt"
	"github.com/magabrotheeeer/paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/paywall/internal/lib/sl"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/migrations"
	pp "github.com/magabrotheeeer/paywall/internal/paymentprovider"
	"github.com/magabrotheeeer/paywall/internal/services/billing"
	"github.com/magabrotheeeer/paywall/internal/services/catalog"
	"github.com/magabrotheeeer/paywall/internal/services/checkout"
	"github.com/magabrotheeeer/paywall/internal/services/entitlement"
	"github.com/magabrotheeeer/paywall/internal/services/events"
	"github.com/magabrotheeeer/paywall/internal/services/license"
	"github.com/magabrotheeeer/paywall/internal/services/linking"
	"github.com/magabrotheeeer/paywall/internal/services/trial"
	"github.com/magabrotheeeer/paywall/internal/storage"
	"github.com/magabrotheeeer/paywall/internal/storage/memory"
	"github.com/magabrotheeeer/paywall/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// publisher — публикация событий с закрытием соединения.
type publisher interface {
	events.Publisher
	Close() error
}

type App struct {
	server    *http.Server
	logger    *slog.Logger
	store     storage.Store
	cache     *cache.Cache
	publisher publisher
}

// New собирает приложение по конфигурации. reg — реестр метрик, nil означает
// prometheus.DefaultRegisterer.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*App, error) {
	const op = "paywall.New"

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, store: store, publisher: rabbitmq.NopPublisher{}}

	var planCache catalog.Cache
	if cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			// каталог читается из хранилища и без кэша
			logger.Warn("redis is unavailable, plan cache disabled", sl.Err(err))
		} else {
			app.cache = c
			planCache = c
		}
	}

	if cfg.RabbitMQ.URL != "" {
		pub, err := openPublisher(cfg.RabbitMQ)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.publisher = pub
	}

	hs, err := hasher.New(cfg.HashKey)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	m := metrics.New(registerer)
	notifier := events.NewNotifier(logger, app.publisher, m)

	plans := catalog.New(logger, store, planCache, cfg.PlanTTL)
	resolver := entitlement.New(logger, store, hs)
	provider := pp.NewClient(cfg.Billing.APIURL, cfg.Billing.SecretKey, cfg.Billing.Timeout)
	verifier := pp.NewVerifier(cfg.Billing.WebhookSecret, cfg.Billing.WebhookTolerance)

	services := Services{
		Store:       store,
		Trial:       trial.New(logger, store, hs, notifier, m),
		Entitlement: resolver,
		License:     license.New(logger, store, plans, hs, notifier, m),
		Linking:     linking.New(logger, store, resolver, hs, notifier, m),
		Billing:     billing.New(logger, store, verifier, notifier, m),
		Checkout:    checkout.New(logger, provider, resolver, plans, store, hs),
		Catalog:     plans,
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, services, RouteOptions{
		Verifier:     jwt.NewVerifier(cfg.JWTSecretKey, cfg.Issuer, cfg.Audience),
		AdminKeyHash: cfg.AdminKeyHash,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		Metrics:      m,
		Gatherer:     gatherer,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.New(memory.DefaultPlans()...), nil
	case config.DriverPostgres:
		if !cfg.SkipMigrations {
			if err := migrations.RunDSN(cfg.DSN); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}
		return repository.New(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func openPublisher(cfg config.RabbitMQ) (*rabbitmq.Publisher, error) {
	conn, err := rabbitmq.Connect(cfg.URL, cfg.Retries, cfg.Delay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.EntitlementsExchange, rabbitmq.GetEntitlementQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return rabbitmq.NewPublisher(ch, rabbitmq.EntitlementsExchange), nil
}

// Handler возвращает корневой обработчик маршрутов.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("failed to close event publisher", sl.Err(err))
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", sl.Err(err))
		}
	}
	a.store.Close()
}
