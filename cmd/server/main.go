package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-orchestrator/internal/orchestrator"
	"live-orchestrator/internal/platform/cache"
	"live-orchestrator/internal/platform/config"
	"live-orchestrator/internal/platform/logger"
	"live-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	shutdownTimeout = 10 * time.Second
	redisConnTries  = 5
)

func main() {
	_ = config.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store orchestrator.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		store = orchestrator.NewInMemoryStore()
	case config.BackendRedis:
		rdb, err := cache.Connect(ctx, cfg.RedisURL, redisConnTries, log)
		if err != nil {
			log.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		store = orchestrator.NewRedisStore(rdb, cfg.RedisKeyPrefix)
	default:
		fs, err := orchestrator.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Error("data dir unavailable", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		store = fs
	}

	met := metrics.New()
	hub := orchestrator.NewHub(orchestrator.HubConfig{
		Buffer:           cfg.SubscriberBuffer,
		WriteTimeout:     cfg.WriteTimeout,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}, time.Now, log, met)
	orch := orchestrator.NewOrchestrator(store, hub, log, orchestrator.Options{
		GuardWindow: cfg.ScheduleGuardWindow,
		Media:       orchestrator.MediaServer{Host: cfg.MediaHost, HLSPort: cfg.HLSPort, RTMPPort: cfg.RTMPPort},
		Metrics:     met,
	})
	if err := orch.Restore(ctx); err != nil {
		log.Warn("restore state failed", "error", err)
	}

	go hub.Run(ctx)
	if cfg.ScheduleEnabled {
		go orchestrator.NewScheduler(orch, cfg.ScheduleInterval, log, met).Run(ctx)
	} else {
		log.Info("scheduler disabled")
	}

	h := orchestrator.NewHandler(orch, log, orchestrator.EventsConfig{
		ConnectTimeout:   cfg.ConnectTimeout,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	})

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetSubscribers(orch.SubscriberCount())
			met.SetLiveStreams(orch.LiveCount())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"schedule_interval", cfg.ScheduleInterval.String(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	cancel()
	hub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
