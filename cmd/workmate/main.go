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

	"github.com/workmate/workmate/internal/config"
	"github.com/workmate/workmate/internal/db"
	"github.com/workmate/workmate/internal/scheduler"
	calsync "github.com/workmate/workmate/internal/sync"
	"github.com/workmate/workmate/internal/taskevent"
	"github.com/workmate/workmate/internal/validator"
	"github.com/workmate/workmate/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Workmate...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	if err := cfg.Validate(ctx); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Initialize sync engine and task-event mapper
	engine := calsync.NewEngine(database)
	mapper := taskevent.NewMapper(database)

	// Initialize scheduler
	sched := scheduler.New(database, engine, mapper, cfg)

	// URL validator for integration endpoints
	var validatorOpts []validator.Option
	if cfg.IsDevelopment() {
		validatorOpts = append(validatorOpts, validator.WithAllowPrivateIPs())
	}
	urlValidator := validator.New(validatorOpts...)

	// Initialize handlers and router
	handlers := web.NewHandlers(cfg, database, engine, mapper, sched, urlValidator)
	router := web.NewRouter(cfg)
	web.SetupRoutes(router, handlers, cfg, database)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler
	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
