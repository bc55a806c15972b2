package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"qrattend/internal/account"
	"qrattend/internal/attendance"
	"qrattend/internal/audit"
	"qrattend/internal/catalog"
	"qrattend/internal/config"
	"qrattend/internal/httpapi"
	"qrattend/internal/httpmiddleware"
	applog "qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/store"
	"qrattend/internal/store/memstore"
	"qrattend/internal/token"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// backends groups the persistence implementations chosen by STORE_BACKEND.
type backends struct {
	users   account.Store
	roster  account.Roster
	catalog catalog.Store
	ledger  attendance.Ledger
	lookup  attendance.Catalog
	scans   audit.Store
	healthy func(context.Context) bool
	close   func() error
}

func openBackends(ctx context.Context, cfg config.App) (backends, error) {
	if cfg.StoreBackend == "memory" {
		log.Println("using in-memory store; data is lost on restart")
		mem := memstore.New()
		return backends{mem, mem, mem, mem, mem, mem, mem.Healthy, func() error { return nil }}, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return backends{}, fmt.Errorf("db connect: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(db.Client); err != nil {
			_ = db.Close()
			return backends{}, err
		}
		log.Println("database migrations applied")
	}
	cat := catalog.NewRepository(db.Client)
	return backends{
		users:   account.NewRepository(db.Client),
		roster:  cat,
		catalog: cat,
		ledger:  attendance.NewRepository(db.Client),
		lookup:  cat,
		scans:   audit.NewRepository(db.Client),
		healthy: db.Healthy,
		close:   db.Close,
	}, nil
}

func newCodec(cfg config.App) (token.Codec, error) {
	if cfg.QRTokenMode == "signed" {
		return token.NewSignedCodec(cfg.QRSigningKey, cfg.JWTIssuer)
	}
	return token.PlainCodec{}, nil
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lf := applog.NewFactory(cfg.LogLevel, os.Stdout)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.close() }()
	health := map[string]func(context.Context) bool{"db": be.healthy}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.LimiterBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// no separate worker can see an in-process queue, so drain it here
		consumer := audit.NewConsumer(q, be.scans, m, lf)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("audit consumer stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	if cfg.StoreBackend == "memory" {
		purges, err := audit.Schedule(audit.NewPurger(be.scans, cfg.AuditRetention, nil, lf), cfg.AuditPurgeSchedule)
		if err != nil {
			return err
		}
		defer purges.Stop()
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}

	var scanLimiter httpmiddleware.Limiter
	if cfg.LimiterBackend == "redis" {
		scanLimiter = httpmiddleware.NewRedisWindow(redisClient.Client, "qrattend:ratelimit:scan", cfg.ScanLimitPerMin, time.Minute)
	} else {
		scanLimiter = httpmiddleware.NewTokenBucket(cfg.ScanLimitPerMin, cfg.ScanLimitPerMin)
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Accounts: account.NewService(be.users, be.roster, account.Options{
			BcryptCost:    cost,
			Metrics:       m,
			LoggerFactory: lf,
		}),
		Catalog: catalog.NewService(be.catalog, be.users, lf),
		Attendance: attendance.NewService(be.ledger, be.lookup, attendance.Options{
			Codec:         codec,
			Freshness:     cfg.QRFreshness,
			FutureSkew:    cfg.QRFutureSkew,
			Publisher:     audit.NewPublisher(q),
			Metrics:       m,
			LoggerFactory: lf,
		}),
		ScanLog:       be.scans,
		Generator:     token.NewGenerator(codec, nil),
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		AccessTTL:     cfg.AccessTTL,
		RotateEvery:   cfg.QRRotateEvery,
		SessionTTL:    cfg.QRSessionTTL,
		Limiter:       httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		ScanLimiter:   scanLimiter,
		Health:        health,
		Gatherer:      reg,
		LoggerFactory: lf,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s (store=%s queue=%s qr=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend, cfg.QRTokenMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return err
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	cancel()

	log.Println("Server exited")
	return nil
}
