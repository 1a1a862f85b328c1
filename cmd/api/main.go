package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"frontdesk/internal/config"
	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/middleware"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/modules/bookingstate"
	"frontdesk/internal/modules/documents"
	"frontdesk/internal/modules/orchestrator"
	"frontdesk/internal/modules/payment"
	"frontdesk/internal/modules/realtime"
	"frontdesk/internal/pkg/cardvault"
	jwtsvc "frontdesk/internal/pkg/jwt"
	"frontdesk/internal/pkg/lock"
	"frontdesk/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	vault, err := newVault(cfg, logger)
	if err != nil {
		return err
	}

	locker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	bookingRepo := repository.NewBookingRepository(db, vault)

	client := billing.NewClient(billing.Config{
		BaseURL:       cfg.BillingBaseURL,
		Timeout:       cfg.BillingTimeout,
		RatePerSecond: cfg.BillingRatePerSecond,
		Currency:      cfg.BillingCurrency,
	}, logger, billing.NewMetrics(registry))
	sessions := billing.NewSessionManager(client, tenantCredentials(cfg), logger)

	docRegistry := documents.NewRegistry(documents.NewStore(db), logger)
	selector := actions.NewSelector(docRegistry)

	hub := realtime.NewHub(logger)
	orch := orchestrator.New(orchestrator.Deps{
		Bookings:  bookingRepo,
		Gateway:   client,
		Sessions:  sessions,
		Documents: docRegistry,
		Updater:   bookingstate.NewUpdater(bookingRepo, logger),
		Selector:  selector,
		Locker:    locker,
		Tracker:   orchestrator.NewTracker(hub),
	}, orchestrator.Config{
		LockTTL:  cfg.BookingLockTTL,
		Currency: cfg.BillingCurrency,
	}, logger, orchestrator.NewMetrics(registry))

	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorLogger(logger), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/healthz", healthz(db))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	realtime.NewHandler(hub, tokens, bookingRepo, cfg.CORSAllowedOrigins, logger).RegisterRoutes(r)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(tokens), middleware.RequireRole(jwtsvc.RoleFrontDesk, jwtsvc.RoleManager))
	payment.NewHandler(bookingRepo, docRegistry, selector, orch, logger).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if level, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = level
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// newVault falls back to a random key outside production. Cards sealed with
// it do not survive a restart.
func newVault(cfg *config.Config, logger *zap.Logger) (*cardvault.Vault, error) {
	if cfg.CardVaultKey != "" {
		return cardvault.NewFromHex(cfg.CardVaultKey)
	}
	logger.Warn("CARD_VAULT_KEY not set, using an ephemeral key")
	return cardvault.NewRandom()
}

func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, booking locks are process local")
		return lock.NewMemoryLocker(), nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisLockDB)
	if err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client, "frontdesk:lock:", logger), nil
}

func tenantCredentials(cfg *config.Config) map[domain.Location]billing.Credentials {
	out := make(map[domain.Location]billing.Credentials, len(cfg.BillingTenants))
	for loc, creds := range cfg.BillingTenants {
		out[loc] = billing.Credentials{APIKey: creds.APIKey, APISecret: creds.APISecret}
	}
	return out
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
