package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kdimtricp/laptimer/internal/api"
	"github.com/kdimtricp/laptimer/internal/database"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/session"
	"github.com/kdimtricp/laptimer/internal/storage"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./laptimer.db"
	}

	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		logDir = "./logs"
	}

	lapConfig := lapping.DefaultConfig()

	if v := os.Getenv("LAP_TOLERANCE"); v != "" {
		tolerance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Fatal("Invalid LAP_TOLERANCE:", err)
		}
		lapConfig.Tolerance = tolerance
	}

	if v := os.Getenv("LAP_MINIMUM"); v != "" {
		minimum, err := time.ParseDuration(v)
		if err != nil {
			log.Fatal("Invalid LAP_MINIMUM:", err)
		}
		lapConfig.MinimumLap = minimum
	}

	if v := os.Getenv("LAP_TICK_INTERVAL"); v != "" {
		tick, err := time.ParseDuration(v)
		if err != nil {
			log.Fatal("Invalid LAP_TICK_INTERVAL:", err)
		}
		lapConfig.TickInterval = tick
	}

	if v := os.Getenv("LAP_TOP_K"); v != "" {
		topK, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal("Invalid LAP_TOP_K:", err)
		}
		lapConfig.TopK = topK
	}

	if err := lapConfig.Validate(); err != nil {
		log.Fatal("Invalid lap configuration:", err)
	}

	logStorage, err := storage.NewLocalStorage(logDir)
	if err != nil {
		log.Fatal("Failed to initialize log storage:", err)
	}

	db, err := database.NewDB(database.Config{SQLitePath: dbPath})
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	log.Printf("Running database migrations")
	if err := db.MigrateUp(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	sessionRepo := database.NewSessionRepository(db)
	lapRepo := database.NewLapRepository(db)

	sessions, err := session.NewService(sessionRepo, lapRepo, logStorage, session.Config{Lapping: lapConfig})
	if err != nil {
		log.Fatal("Failed to initialize session service:", err)
	}

	app := &api.App{
		Sessions:    sessions,
		SessionRepo: sessionRepo,
		LapRepo:     lapRepo,
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: api.NewRouter(app),
	}
	// Shutdown waits for active handlers, and event streams only end when
	// their session does.
	srv.RegisterOnShutdown(sessions.Close)

	log.Printf("Server starting on port %s", port)
	log.Printf("Database path: %s", dbPath)
	log.Printf("Log directory: %s", logDir)
	log.Printf("Lapping: tolerance %.2f, minimum lap %s, tick %s, top %d",
		lapConfig.Tolerance, lapConfig.MinimumLap, lapConfig.TickInterval, lapConfig.TopK)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Waits for the close started by Shutdown and the lap writer.
	sessions.Close()
}
