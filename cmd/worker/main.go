package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/audit"
	"qrattend/internal/config"
	applog "qrattend/internal/logging"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker drains scan events from the queue into the audit log and purges
// expired events on a schedule.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.QueueBackend != "redis" || cfg.StoreBackend != "postgres" {
		log.Fatal("worker needs QUEUE_BACKEND=redis and STORE_BACKEND=postgres; the api drains in-memory queues itself")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	lf := applog.NewFactory(cfg.LogLevel, os.Stdout)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := store.Migrate(db.Client); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}

	events := audit.NewRepository(db.Client)
	purges, err := audit.Schedule(audit.NewPurger(events, cfg.AuditRetention, nil, lf), cfg.AuditPurgeSchedule)
	if err != nil {
		log.Fatalf("purge schedule: %v", err)
	}
	defer purges.Stop()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	log.Println("worker started, waiting for scan events...")
	if err := audit.NewConsumer(q, events, m, lf).Run(ctx); err != nil {
		log.Printf("consumer: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Println("worker stopped")
}
