package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lab1702/broadside/engine"
	"github.com/lab1702/broadside/server"
	"github.com/lab1702/broadside/store"
	"github.com/lab1702/broadside/teams"
)

// repository is what the engine needs from a store
type repository interface {
	engine.BoardRepository
	engine.ShotRepository
}

func main() {
	port := flag.String("port", "8080", "Server port")
	seed := flag.Int64("seed", 0, "Random seed for boards and patterns (0 uses the clock)")
	debug := flag.Bool("debug", false, "Log every resolved cell")
	flag.Parse()

	engine.DebugShots = *debug

	log.Printf("Starting Broadside server on port %s", *port)

	repo, closeRepo := openRepository()
	defer closeRepo()

	teamStore := teams.NewStore()
	gameServer := server.NewServer(teamStore)
	gameEngine := engine.New(engine.Config{
		Teams:    teamStore,
		Shots:    repo,
		Boards:   repo,
		Notifier: gameServer,
		Seed:     *seed,
	})
	gameServer.AttachEngine(gameEngine)
	go gameServer.Run()

	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", gameServer.HandleWebSocket)

	// Game stats endpoint
	mux.HandleFunc("GET /api/games/{id}/stats", gameServer.HandleStats)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Server running at http://localhost:%s", *port)

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Shutting down server (signal: %v)...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop accepting requests, then drain the game actors
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	gameServer.Shutdown()
	gameEngine.Close()

	log.Println("Server stopped")
}

// openRepository connects to Postgres when DB_HOST is set and falls back to
// the in-memory store otherwise
func openRepository() (repository, func()) {
	cfg, ok := store.LoadConfig()
	if !ok {
		log.Printf("[STORE] DB_HOST not set, keeping games in memory")
		return store.NewMemory(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Printf("[STORE] close error: %v", err)
		}
	}
}
