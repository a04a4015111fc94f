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

	"scriptroom/api/internal/app"
	"scriptroom/api/internal/assist"
	"scriptroom/api/internal/cache"
	"scriptroom/api/internal/config"
	"scriptroom/api/internal/engine"
	"scriptroom/api/internal/export"
	"scriptroom/api/internal/search"
	"scriptroom/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var snapshots engine.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for local snapshots")
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		snapshots = redisCache
	} else {
		fileCache, err := cache.NewFileCache(cfg.CacheDir)
		if err != nil {
			log.Printf("WARNING: snapshot dir unavailable, keeping snapshots in memory: %v", err)
			snapshots = cache.NewMemory()
		} else {
			log.Printf("Using %s for local snapshots", cfg.CacheDir)
			snapshots = fileCache
		}
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	defer searchService.Close()
	go searchService.ReindexAllFromPG(ctx)

	var archiver export.Archiver
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		archive, err := export.NewArchive(ctx, export.ArchiveConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: export archive disabled: %v", err)
		} else {
			archiver = archive
		}
	}
	exportService := export.NewService(archiver)

	assistClient := assist.NewClient(assist.Config{
		Enabled:  cfg.AssistEnabled,
		Endpoint: cfg.AssistURL,
		APIKey:   cfg.AssistAPIKey,
	})
	if !assistClient.Enabled() {
		log.Printf("Assist is disabled")
	}

	service := app.New(cfg, dataStore, snapshots, searchService, exportService, assistClient)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Scriptroom API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	service.Shutdown()
}
