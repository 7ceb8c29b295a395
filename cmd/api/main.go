package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkin/api/internal/app"
	"checkin/api/internal/archive"
	"checkin/api/internal/bus"
	"checkin/api/internal/config"
	"checkin/api/internal/credential"
	"checkin/api/internal/directory"
	"checkin/api/internal/store"
)

// dataStore is the backend the process runs against, chosen by
// configuration: Postgres when DATABASE_URL is set, Redis otherwise.
type dataStore interface {
	directory.Store
	SoundPreference(ctx context.Context, username string) (string, error)
	SaveSoundPreference(ctx context.Context, username, sound string) error
	Subscribe(ctx context.Context) (<-chan struct{}, error)
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var backend dataStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		log.Printf("Using PostgreSQL directory storage")
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("schema setup failed: %v", err)
		}
		backend = store.NewPostgresStore(db, cfg.DatabaseURL)
	} else {
		log.Printf("Using Redis directory storage")
		redisStore, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		backend = redisStore
	}
	defer backend.Close()

	changeBus := bus.New()
	dir := directory.NewService(directory.Config{
		Store:         backend,
		Credentials:   credential.New(),
		Bus:           changeBus,
		OwnerUsername: cfg.OwnerUsername,
		OwnerEmail:    cfg.OwnerEmail,
		OwnerPassword: cfg.OwnerPassword,
	})
	if err := dir.SeedIfAbsent(ctx); err != nil {
		log.Printf("WARNING: seed error (will retry on next restart): %v", err)
	}

	var importArchive *archive.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		var err error
		importArchive, err = archive.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("archive setup failed: %v", err)
		}
		log.Printf("Archiving CSV imports to bucket %q", cfg.MinioBucket)
	}

	service := app.New(cfg, backend, dir, changeBus, importArchive)
	if err := service.Start(ctx); err != nil {
		log.Fatalf("change subscription failed: %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /api/events holds its response open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Check-in API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
