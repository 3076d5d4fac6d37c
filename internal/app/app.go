package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/authorstore/internal/handler"
	"github.com/xenking/authorstore/internal/storage/postgres"
	"github.com/xenking/authorstore/pkg/health"
	"github.com/xenking/authorstore/pkg/httpmiddleware"
)

const (
	serviceName = "store-api"

	healthInterval = 10 * time.Second
	maxGoroutines  = 10000
)

// Run migrates the database, wires the order service and serves the store
// API until ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Starting store API", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	probes := newProbes(pool)
	limiterStore, closeRedis := newLimiterStore(lg, cfg, probes)
	defer closeRedis()

	if cfg.Stripe.WebhookSecret == "" {
		lg.Warn("Stripe webhook secret is empty, every payment webhook will be rejected")
	}
	svc, err := NewServices(cfg, pool, lg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	probes.Start(ctx, healthInterval)
	defer probes.Stop()

	server := newServer(ctx, cfg, m, svc, probes, limiterStore)
	probes.SetReady(true)
	return serve(ctx, lg, cfg, server, probes, svc)
}

func newProbes(pool *pgxpool.Pool) *health.Health {
	h := health.New()
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(maxGoroutines))
	return h
}

// newLimiterStore returns the shared rate limit store when Redis is
// configured, or nil for per-process counters.
func newLimiterStore(lg *zap.Logger, cfg *Config, probes *health.Health) (httpmiddleware.Store, func()) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	// Rate limiting fails open, so Redis only degrades readiness.
	probes.AddReadinessCheck("redis", 2*time.Second, health.PingFunc("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}), health.Optional())

	lg.Info("Using Redis rate limit store", zap.String("redis_addr", cfg.Redis.Addr))
	return httpmiddleware.NewRedisStore(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window), func() { _ = rdb.Close() }
}

func newServer(
	ctx context.Context,
	cfg *Config,
	m *app.Telemetry,
	svc *Services,
	probes *health.Health,
	limiterStore httpmiddleware.Store,
) *http.Server {
	authn := handler.NewAuthenticator(handler.AuthConfig{
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		Audience:     cfg.Auth.Audience,
		APIKeyPepper: []byte(cfg.Auth.APIKeyPepper),
	}, svc.APIKeys)

	router := handler.New(svc.Orders, svc.Products, svc.Stripe, authn).Routes()
	router.Get("/livez", probes.LiveEndpoint)
	router.Get("/readyz", probes.ReadyEndpoint)
	find := httpmiddleware.MakeRouteFinder(router)

	lg := zctx.From(ctx)
	return &http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout blocks on Stripe including its retries.
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(lg),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "X-Order-Token"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  limiterStore,
				Skip:   handler.IsPaymentWebhook,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument(serviceName, find, m),
			httpmiddleware.LogRequests(find),
			httpmiddleware.Labeler(find),
		),
	}
}

// serve runs the server until ctx is done. On shutdown readiness goes down
// first, then in-flight requests and background fulfillment are drained.
func serve(ctx context.Context, lg *zap.Logger, cfg *Config, server *http.Server, probes *health.Health, svc *Services) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		probes.SetReady(false)
		lg.Info("Draining", zap.Duration("readiness_delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Shutdown HTTP server", zap.Error(err))
		}
		svc.Close(shutdownCtx)
		return nil
	})
	return g.Wait()
}
