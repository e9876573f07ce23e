package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ruteo-sync-agent/internal/cache"
	"ruteo-sync-agent/internal/config"
	"ruteo-sync-agent/internal/connectivity"
	"ruteo-sync-agent/internal/handler"
	"ruteo-sync-agent/internal/remote"
	"ruteo-sync-agent/internal/repository"
	"ruteo-sync-agent/internal/router"
	"ruteo-sync-agent/internal/service"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Ruteo sync agent...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize durable store based on config
	var store repository.Store
	switch cfg.QueueDB.Type {
	case "mysql":
		db, err := sql.Open("mysql", cfg.QueueDB.DSN())
		if err != nil {
			log.Fatalf("Failed to open MySQL: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Fatalf("MySQL ping failed: %v", err)
		}
		mysqlStore, err := repository.NewMySQLStore(db)
		if err != nil {
			log.Fatalf("Failed to initialize MySQL store: %v", err)
		}
		store = mysqlStore
		log.Println("MySQL store initialized")
	default: // sqlite
		if err := os.MkdirAll(filepath.Dir(cfg.QueueDB.Path), 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		sqliteStore, err := repository.NewSQLiteStore(cfg.QueueDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite store: %v", err)
		}
		store = sqliteStore
		log.Println("SQLite store initialized")
	}
	defer store.Close()

	// Device identity survives restarts with the store
	deviceID := cfg.App.DeviceID
	if deviceID == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		deviceID, err = store.DeviceID(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to resolve device id: %v", err)
		}
	}
	log.Printf("Device id: %s", deviceID)

	// Initialize day counters (Redis optional, memory fallback)
	var counters cache.CounterStore
	if cfg.Counters.Type == "redis" {
		redisCounters, err := cache.NewRedisCounters(cache.RedisCountersConfig{
			Addr:     cfg.Counters.RedisAddress(),
			Password: cfg.Counters.RedisPassword,
			DB:       cfg.Counters.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis counters unavailable, using memory: %v", err)
			counters = cache.NewMemoryCounters()
		} else {
			counters = redisCounters
		}
	} else {
		counters = cache.NewMemoryCounters()
	}
	defer counters.Close()

	// Remote authority client and connectivity monitor
	authority := remote.New(remote.Config{
		BaseURL:     cfg.Authority.BaseURL,
		APIKey:      cfg.Authority.APIKey,
		BaseTimeout: cfg.Authority.BaseTimeout,
		MaxTimeout:  cfg.Authority.MaxTimeout,
	})
	monitor := connectivity.NewMonitor(authority, cfg.Sync.ProbeInterval, cfg.Sync.FlapWindow)

	// Initialize services
	queueService := service.NewQueueService(store, counters, deviceID)
	submitter := service.NewSubmitter(store, authority, monitor, service.RetryPolicy{
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	shiftManager := service.NewShiftManager(store, authority, counters, service.ShiftManagerConfig{
		StaleWindow:   cfg.Shift.StaleWindow,
		VerifyRetries: cfg.Authority.VerifyRetries,
		VerifyBackoff: cfg.Authority.VerifyBackoff,
	})
	submitter.SetShiftConflictSink(shiftManager)

	scheduler := service.NewSyncScheduler(submitter, store, monitor, service.SchedulerConfig{
		Interval: cfg.Sync.Interval,
	})

	monitor.Start()
	scheduler.Start()

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version, monitor)
	queueHandler := handler.NewQueueHandler(queueService, scheduler)
	shiftHandler := handler.NewShiftHandler(shiftManager)

	// Create router
	r := router.New(router.Config{
		Handler:      healthHandler,
		QueueHandler: queueHandler,
		ShiftHandler: shiftHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Agent listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down agent...")

	scheduler.Stop()
	monitor.Stop()

	// One last flush so a connected handheld does not carry confirmed work
	// across a restart.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if vendors, err := store.VendorsWithPending(flushCtx); err == nil {
		for _, vendorID := range vendors {
			if _, err := submitter.SyncOnce(flushCtx, vendorID, false); err != nil {
				log.Printf("Final flush for %s failed: %v", vendorID, err)
			}
		}
	}
	flushCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Agent stopped")
	fmt.Println("Goodbye!")
}
