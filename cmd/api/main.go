package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/http/handlers"
	"github.com/diagnosis/hotel-site/internal/http/middleware"
	"github.com/diagnosis/hotel-site/internal/notify"
	"github.com/diagnosis/hotel-site/internal/platform/mailer"
	"github.com/diagnosis/hotel-site/internal/repo/memory"
	"github.com/diagnosis/hotel-site/internal/repo/postgres"
	"github.com/diagnosis/hotel-site/internal/repo/redis"
	"github.com/diagnosis/hotel-site/pkg/config"
	"github.com/diagnosis/hotel-site/pkg/database"
	"github.com/diagnosis/hotel-site/pkg/events"
	"github.com/diagnosis/hotel-site/pkg/logger"
	mw "github.com/diagnosis/hotel-site/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load .env", "error", err)
	}
	cfg := config.Load()

	ctx := context.Background()

	transport, provider := mailer.FromConfig(cfg.Email)
	logger.Info("Mail transport configured", "provider", provider, "admin_email", cfg.Email.AdminEmail)

	hotel := notify.Hotel{
		Name:    cfg.Hotel.Name,
		Email:   cfg.Hotel.Email,
		Phone:   cfg.Hotel.Phone,
		Address: cfg.Hotel.Address,
		Website: cfg.Hotel.Website,
	}
	loc := cfg.Hotel.Location()

	// Throttling and replay stores
	limitStore, idemStore, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open stores", "backend", cfg.RateLimit.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	// Event bus
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		publisher = bus
	}
	defer publisher.Close()

	// Handlers
	site, err := handlers.NewSiteHandler(cfg.Site.ViewsDir, cfg.Site.PublicDir, hotel, loc)
	if err != nil {
		logger.Error("Failed to load views", "dir", cfg.Site.ViewsDir, "error", err)
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(transport, notify.NewRenderer(hotel), cfg.Email.AdminEmail)
	enq := handlers.NewEnquiryHandler(enquiry.NewValidator(), dispatcher, publisher, loc)

	opts := handlers.RouterOptions{
		Idempotency:    idemStore,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		proxies, err := middleware.NewProxyResolver(cfg.RateLimit.TrustedProxies)
		if err != nil {
			logger.Error("Invalid RATE_LIMIT_TRUSTED_PROXIES", "error", err)
			os.Exit(1)
		}
		opts.RateLimiter = middleware.NewRateLimiter(limitStore, middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			KeyFunc:  proxies.KeyFunc,
		})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(site, enq, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down hotel site...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Hotel site shutdown error", "error", err)
		}
	}()

	logger.Info("Starting hotel site", "port", cfg.Server.Port, "hotel", cfg.Hotel.Name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Hotel site error", "error", err)
		os.Exit(1)
	}
	<-done
}

// openStores builds the rate-limit and idempotency stores for the configured
// backend. The returned func releases any connection.
func openStores(ctx context.Context, cfg *config.Config) (middleware.Store, mw.IdempotencyStore, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		return redis.NewRateLimitRepo(rdb), redis.NewIdempotencyRepo(rdb), func() { _ = rdb.Close() }, nil

	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		limits := postgres.NewRateLimitRepo(pool)
		idem := postgres.NewIdempotencyRepo(pool)
		stop := startCleanup(limits, idem)
		return limits, idem, func() { stop(); pool.Close() }, nil

	default:
		return memory.NewRateLimitRepo(), memory.NewIdempotencyRepo(), func() {}, nil
	}
}

type expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// startCleanup purges expired postgres rows every hour until stopped.
func startCleanup(repos ...expirer) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, repo := range repos {
					if n, err := repo.CleanupExpired(ctx); err != nil {
						logger.Warn("Cleanup of expired rows failed", "error", err)
					} else if n > 0 {
						logger.Debug("Cleaned up expired rows", "rows", n)
					}
				}
			}
		}
	}()
	return cancel
}
