package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concursoprep"
)

func main() {
	cfg, err := concursoprep.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	concursoprep.SetVerbose(cfg.Verbose)

	db, err := concursoprep.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	registry := concursoprep.NewRegistryFromConfig(cfg)
	defer registry.Close()
	if len(registry.Names()) == 0 {
		log.Printf("No LLM API key configured; only stored questions can be drawn")
	}

	// Search results go to Redis when configured, otherwise to SQLite
	var cache concursoprep.SearchCache = db
	if cfg.RedisURL != "" {
		rc, err := concursoprep.NewRedisCache(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Printf("Redis unavailable, caching searches in SQLite: %v", err)
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	generator := concursoprep.NewQuizGenerator(registry, concursoprep.GeneratorOptions{
		Index:               db,
		Search:              concursoprep.NewCachedSearcher(concursoprep.NewDuckDuckGo("", cfg.SearchTimeout), cache),
		SimilarityThreshold: cfg.SimilarityThreshold,
		Checker:             cfg.Checker,
		RequestMultiplier:   cfg.RequestMultiplier,
		LogDir:              cfg.LogDir,
		Timeout:             cfg.LLMTimeout,
	})

	server, err := NewServer(db, registry, generator, cfg.SessionSecret)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Routes(),
	}

	go func() {
		log.Printf("Starting server on port %s (models: %v)", cfg.Port, registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
