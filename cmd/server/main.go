package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"                 // loads .env in development
	"github.com/labstack/echo/v4"              // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"

	"github.com/graphuraprojects/agrirent/internal/config"
	"github.com/graphuraprojects/agrirent/internal/database"
	"github.com/graphuraprojects/agrirent/internal/gateway"
	"github.com/graphuraprojects/agrirent/internal/handler"
	"github.com/graphuraprojects/agrirent/internal/mailer"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
	"github.com/graphuraprojects/agrirent/internal/router"
	"github.com/graphuraprojects/agrirent/internal/service"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load() // Load environment config
	logger := log.New("agrirent")
	logger.SetHeader("${time_rfc3339} ${level} ${prefix}")
	if cfg.Env == "prod" {
		logger.SetLevel(log.INFO)
	} else {
		logger.SetLevel(log.DEBUG)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	applied, err := database.Migrate(ctx, db)
	if err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	for _, v := range applied {
		logger.Infof("migration %s applied", v)
	}

	// Redis holds pending registrations, so unlike the cache it is required.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	addresses := repository.NewAddressRepo(db)
	machines := repository.NewMachineRepo(db)
	availability := repository.NewAvailabilityRepo(db)
	bookings := repository.NewBookingRepo(db)
	payments := repository.NewPaymentRepo(db)
	invoices := repository.NewInvoiceRepo(db)
	coupons := repository.NewCouponRepo(db)
	earnings := repository.NewEarningsRepo(db)
	pending := repository.NewPendingRegistrationStore(rdb)

	publisher := queue.NewPublisher(cfg.Queue, logger)
	consumer := queue.NewConsumer(cfg.Queue, mailer.NewSMTP(cfg.Mail, logger), logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("notification consumer stopped: %v", err)
		}
	}()

	commission := decimal.NewFromFloat(cfg.Business.CommissionRate)
	authSvc := service.NewAuthService(users, tokens, pending, service.AuthSettings{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
		PendingTTL:     cfg.Business.PendingRegistrationTTL,
	}, publisher, logger)
	if err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatalf("bootstrap admin: %v", err)
	}
	accountSvc := service.NewAccountService(users, addresses, tokens, logger)
	machineSvc := service.NewMachineService(machines, availability, users, publisher, logger)
	bookingSvc := service.NewBookingService(bookings, machines, users, addresses, publisher, logger)
	paymentSvc := service.NewPaymentService(payments, bookings, machines, users, invoices,
		gateway.NewRazorpay(cfg.Payment), service.PaymentSettings{
			CommissionRate: commission,
			TaxRate:        decimal.NewFromFloat(cfg.Business.TaxRate),
			Currency:       cfg.Payment.Currency,
		}, publisher, logger)
	earningsSvc := service.NewEarningsService(earnings, commission)
	couponSvc := service.NewCouponService(coupons)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger = logger
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.LoggerWithConfig(echomw.LoggerConfig{
		Format: "${time_rfc3339} ${id} ${method} ${uri} ${status} ${latency_human}\n",
	}))

	router.Register(e, router.Deps{
		Auth:     handler.NewAuthHandler(authSvc),
		Accounts: handler.NewAccountHandler(accountSvc),
		Machines: handler.NewMachineHandler(machineSvc),
		Bookings: handler.NewBookingHandler(bookingSvc),
		Payments: handler.NewPaymentHandler(paymentSvc),
		Earnings: handler.NewEarningsHandler(earningsSvc),
		Coupons:  handler.NewCouponHandler(couponSvc),
		Health: handler.Health(map[string]handler.Check{
			"mysql": db.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		JWTSecret:    cfg.JWTSecret,
		Redis:        rdb,
		Cache:        config.LoadCacheConfig(),
		AuthLimit:    config.LoadRateLimitConfig("auth"),
		PaymentLimit: config.LoadRateLimitConfig("payments"),
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
