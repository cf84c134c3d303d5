package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/sake-tasting-reservation/internal/calendar"
	"github.com/iliyamo/sake-tasting-reservation/internal/config"
	"github.com/iliyamo/sake-tasting-reservation/internal/database"
	"github.com/iliyamo/sake-tasting-reservation/internal/handler"
	"github.com/iliyamo/sake-tasting-reservation/internal/logger"
	"github.com/iliyamo/sake-tasting-reservation/internal/middleware"
	"github.com/iliyamo/sake-tasting-reservation/internal/notification"
	"github.com/iliyamo/sake-tasting-reservation/internal/payment"
	"github.com/iliyamo/sake-tasting-reservation/internal/queue"
	"github.com/iliyamo/sake-tasting-reservation/internal/repository"
	"github.com/iliyamo/sake-tasting-reservation/internal/router"
	"github.com/iliyamo/sake-tasting-reservation/internal/service"
	"github.com/iliyamo/sake-tasting-reservation/internal/utils"
)

func main() {
	cfg, cfgErr := config.Load()
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	if cfgErr != nil {
		lg.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backends handler.Backends

	// Ledger: MySQL when configured, otherwise process memory.
	var (
		db       *sql.DB
		bookings service.BookingStore
		pending  service.PendingStore
		settings notification.SettingStore
	)
	if cfg.DBHost != "" {
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			lg.Fatal("open database", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			lg.Fatal("ensure schema", zap.Error(err))
		}
		bookings, pending, settings = repository.NewBookingRepo(db), repository.NewPendingRepo(db), repository.NewSettingRepo(db)
		backends.Store = "mysql"
	} else {
		mem := repository.NewMemoryStore()
		bookings, pending, settings = mem.Bookings(), mem.Pending(), mem.Settings()
		backends.Store = "memory"
		lg.Warn("DB_HOST not set, bookings are kept in memory only")
	}

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey, cfg.Currency, cfg.ProductName, cfg.GatewayTimeout)
		backends.Payments = "stripe"
	} else {
		gateway = payment.NewOfflineGateway()
		backends.Payments = "offline"
		lg.Warn("STRIPE_SECRET_KEY not set, payments are simulated")
	}

	var catalog calendar.Catalog
	if cfg.CalendarID != "" {
		gc, err := calendar.NewGoogleCatalog(ctx, cfg.GoogleCredentialsFile, cfg.CalendarID, cfg.VenueTZ, cfg.CalendarTimeout)
		if err != nil {
			lg.Fatal("google calendar", zap.Error(err))
		}
		catalog = gc
		backends.Calendar = "google"
	} else {
		catalog = calendar.NewWeeklyCatalog(cfg.Weekly, cfg.VenueTZ)
		backends.Calendar = "weekly"
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
		backends.Cache = "redis"
	} else {
		backends.Cache = "memory"
	}
	cache := service.NewMonthCache(config.LoadCacheConfig(cfg.MonthCacheTTL), rdb, lg)

	templates := notification.NewTemplates(settings, cfg.AdminNotifyEmail)
	consumer := queue.NewConsumer(cfg.RabbitURL, templates, notification.NewFileMailer(cfg.MailLogPath), lg)
	var notifier service.Notifier
	if cfg.RabbitURL != "" {
		notifier = queue.NewPublisher(cfg.RabbitURL, lg)
		backends.Queue = "rabbitmq"
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				lg.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	} else {
		notifier = queue.NewInlineNotifier(consumer)
		backends.Queue = "inline"
	}

	svc := service.NewBookingService(service.Deps{
		Bookings: bookings,
		Pending:  pending,
		Catalog:  catalog,
		Gateway:  gateway,
		Notifier: notifier,
		Cache:    cache,
		Logger:   lg,
	}, service.Options{
		Location:         cfg.VenueTZ,
		RefundPolicy:     cfg.RefundPolicy,
		StrictPricing:    cfg.StrictPricing,
		FinalizeAttempts: cfg.FinalizeAttempts,
		FinalizeDelay:    cfg.FinalizeDelay,
	})
	go purgePending(ctx, svc, cfg.PendingTTL, lg)

	adminHash, err := utils.AdminPasswordHash(cfg.AdminPasswordHash, cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		lg.Fatal("hash admin password", zap.Error(err))
	}
	if adminHash == "" {
		lg.Warn("no admin password configured, admin login is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg)
	auth := handler.NewAuthHandler(cfg, adminHash, lg)
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db})
	router.RegisterDispatch(e, handler.NewActionHandler(svc, templates, auth, cfg, backends, lg), limit)
	router.RegisterAuth(e, auth, cfg.JWTSecret, limit)
	router.RegisterAdmin(e, handler.NewAdminHandler(svc, lg), cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.Any("backends", backends))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("forced shutdown", zap.Error(err))
	}
}

// purgePending settles abandoned pending authorizations once an hour.
func purgePending(ctx context.Context, svc *service.BookingService, ttl time.Duration, lg *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := svc.PurgePending(ctx, ttl)
			if err != nil {
				lg.Warn("purge pending authorizations failed", zap.Error(err))
				continue
			}
			if res.Dropped+res.Finalized+res.Kept > 0 {
				lg.Info("settled pending authorizations", zap.Int("dropped", res.Dropped),
					zap.Int("finalized", res.Finalized), zap.Int("kept", res.Kept))
			}
		}
	}
}
