package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyreel/backend/internal/api"
	"github.com/storyreel/backend/internal/assembler"
	"github.com/storyreel/backend/internal/config"
	"github.com/storyreel/backend/internal/db"
	"github.com/storyreel/backend/internal/effects"
	"github.com/storyreel/backend/internal/media"
	"github.com/storyreel/backend/internal/notify"
	"github.com/storyreel/backend/internal/queue"
	"github.com/storyreel/backend/internal/render"
	"github.com/storyreel/backend/internal/storage"
)

func main() {
	log.Println("Starting Storyreel render API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	var store *storage.Store
	if cfg.StorageURL != "" {
		store, err = storage.New(cfg.OutputDir, cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
		log.Println("Output storage: local + object store mirror")
	} else {
		store, err = storage.NewLocal(cfg.OutputDir)
		log.Println("Output storage: local only")
	}
	if err != nil {
		log.Fatalf("Failed to initialize output storage: %v", err)
	}

	hub := notify.NewHub()

	// Pipeline stages share one runner so every ffmpeg/ffprobe invocation
	// gets the same timeout discipline.
	runner := media.NewRunner()
	prober := media.NewProber(runner)
	timeoutFloor := time.Duration(cfg.EncodeTimeoutFloorS) * time.Second
	synth := effects.NewSynthesizer(runner, cfg.EncodeTimeoutScale, timeoutFloor)
	asm := assembler.New(runner, prober, cfg.EncodeTimeoutScale, timeoutFloor)

	manager := render.NewManager(
		database, q, database, prober, synth, asm, store, hub,
		render.ManagerConfig{
			WorkspaceRoot:        cfg.WorkspaceRoot,
			MaxConcurrentEncodes: cfg.MaxConcurrentEncodes,
			MinSceneSeconds:      cfg.MinSceneSeconds,
			MaxSceneSeconds:      cfg.MaxSceneSeconds,
		},
	)

	handler := api.NewHandler(database, manager, q, api.Defaults{
		Width:  cfg.DefaultWidth,
		Height: cfg.DefaultHeight,
		FPS:    cfg.DefaultFPS,
	})
	router := api.NewRouter(handler, hub.ServeWS, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start workers if enabled
	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting render processing...")
		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go func() {
			defer close(workerDone)
			manager.Start(workerCtx, cfg.MaxConcurrentRenders)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop dequeuing and cancel in-flight jobs; the orphan sweep on next
	// boot covers anything that cannot finish its failure bookkeeping.
	if workerCancel != nil {
		workerCancel()
	}
	select {
	case <-workerDone:
	case <-time.After(15 * time.Second):
		log.Println("Worker shutdown timed out")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
