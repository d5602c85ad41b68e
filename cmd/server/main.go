package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/shift-signup/internal/config"
	"github.com/iliyamo/shift-signup/internal/database"
	"github.com/iliyamo/shift-signup/internal/handler"
	"github.com/iliyamo/shift-signup/internal/middleware"
	"github.com/iliyamo/shift-signup/internal/queue"
	"github.com/iliyamo/shift-signup/internal/repository"
	"github.com/iliyamo/shift-signup/internal/router"
	"github.com/iliyamo/shift-signup/internal/service"
	"github.com/iliyamo/shift-signup/internal/telemetry"
)

const serviceName = "shift-signup"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, serviceName)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("mysql schema: %v", err)
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewAMQPPublisher(cfg.RabbitURL)
	}

	policy := repository.RetryPolicy{
		Attempts: cfg.Booking.MaxAttempts,
		Base:     cfg.Booking.BackoffBase,
		Max:      cfg.Booking.BackoffMax,
	}
	svc := service.NewBookingService(
		repository.NewSlotRepo(rdb),
		repository.NewBookingRepo(rdb, policy),
		repository.NewEmployeeRepo(rdb),
		events,
	)
	svc.OnChange = middleware.CachePurger(cfg.Cache, rdb)

	admins := repository.NewAdminRepo(db)
	tokens := repository.NewTokenRepo(db)

	if cfg.SeedDefaults {
		seeded, err := service.Seed(ctx, admins, svc, service.SeedOptions{
			SuperPassword:  cfg.SeedSuperPass,
			ViewerPassword: cfg.SeedViewerPass,
			BcryptCost:     cfg.BcryptCost,
		})
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seed defaults seeded=%t", seeded)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, rdb)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, admins, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewSlotHandler(svc), rdb, cfg)
	router.RegisterAdmin(e, handler.NewAdminHandler(svc), cfg.JWTSecret)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(e, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s (env=%s)", server.Addr, cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.EventsEnabled {
		g.Go(func() error { return queue.NewConsumer(cfg.RabbitURL).Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(sctx)
		svc.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	log.Printf("shutdown complete")
}
