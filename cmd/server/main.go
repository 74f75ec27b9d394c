package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rvaldes/tributario/internal/api"
	"github.com/rvaldes/tributario/internal/config"
	"github.com/rvaldes/tributario/internal/db"
	"github.com/rvaldes/tributario/internal/export"
	"github.com/rvaldes/tributario/internal/middleware"
	"github.com/rvaldes/tributario/internal/reports"
	"github.com/rvaldes/tributario/internal/repository"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	qualificationRepo := repository.NewQualificationRepository(conn.Pool)
	userRepo := repository.NewUserRepository(conn.Pool)
	reportRepo := repository.NewReportRepository(conn.Pool)
	exportJobRepo := repository.NewExportJobRepository(conn.Pool)

	// Create services
	reportService := reports.NewService(qualificationRepo, userRepo, reportRepo)
	exportService := export.NewService(reportService, exportJobRepo,
		export.WithExportDirectory(cfg.Server.ExportDir),
		export.WithJobTimeout(cfg.Server.JobTimeout),
		export.WithDownloadTokenTTL(cfg.Server.DownloadTTL),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiHandler := middleware.LoggingMiddleware(api.NewHTTPHandler(reportService))
	exportHandler := middleware.LoggingMiddleware(export.NewHTTPHandler(exportService))

	http.Handle("/api/", corsHandler.Handler(apiHandler))
	http.Handle("/exports/", corsHandler.Handler(exportHandler))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting reporting server on %s", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
