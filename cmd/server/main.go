package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpesa-stk-gateway/internal/config"
	"mpesa-stk-gateway/internal/events"
	eventskafka "mpesa-stk-gateway/internal/events/kafka"
	"mpesa-stk-gateway/internal/handler"
	"mpesa-stk-gateway/internal/middleware"
	"mpesa-stk-gateway/internal/mpesa"
	"mpesa-stk-gateway/internal/repository"
	"mpesa-stk-gateway/internal/service"
	"mpesa-stk-gateway/pkg/logger"
)

func main() {
	// Create .env from .env.example if not exists
	if err := ensureEnvFile(); err != nil {
		log.Printf("Warning: Failed to create .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Starting M-Pesa STK gateway service")

	// Initialize transaction store
	var store repository.TransactionStore
	if cfg.Store.DBPath != "" {
		sqliteStore, err := repository.NewSQLiteStore(cfg.Store.DBPath)
		if err != nil {
			appLogger.Error("Failed to open transaction store", "error", err)
			log.Fatalf("Failed to open transaction store: %v", err)
		}
		store = sqliteStore
		appLogger.Info("Using SQLite transaction store", "path", cfg.Store.DBPath)
	} else {
		store = repository.NewMemoryStore()
		appLogger.Info("Using in-memory transaction store")
	}
	defer store.Close()

	// Initialize event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := eventskafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = kafkaPublisher
		appLogger.Info("Publishing payment results to Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
	}
	defer publisher.Close()

	// Initialize provider client
	credentials := mpesa.NewCredentialCache(&cfg.Mpesa, appLogger)
	client := mpesa.NewClient(&cfg.Mpesa, credentials, appLogger)

	// Initialize services
	paymentService := service.NewPaymentService(client, store, publisher, cfg, appLogger)
	defer paymentService.Close()
	callbackService := service.NewCallbackService(store, publisher, appLogger)

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(paymentService, appLogger)
	callbackHandler := handler.NewCallbackHandler(callbackService, appLogger)
	healthHandler := handler.NewHealthHandler(store, cfg, appLogger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.APIKey, appLogger)

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Public routes. The callback route stays open: the provider cannot
	// send an API key.
	mux.HandleFunc("/health", healthHandler.CheckHealth)
	mux.HandleFunc("/api/v1/mpesa/callback", callbackHandler.ReceiveCallback)

	// Protected routes
	mux.HandleFunc("/api/v1/stkpush", authMiddleware.Authenticate(paymentHandler.InitiatePayment))
	mux.HandleFunc("/api/v1/stkpush/status", authMiddleware.Authenticate(paymentHandler.QueryStatus))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("HTTP server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server error", "error", err)
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	appLogger.Info("M-Pesa STK gateway started successfully",
		"address", addr,
		"provider_base_url", cfg.Mpesa.BaseURL,
		"callback_url", cfg.Mpesa.CallbackURL,
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server stopped gracefully")
}

// ensureEnvFile creates .env from .env.example if .env doesn't exist
func ensureEnvFile() error {
	// Check if .env already exists
	if _, err := os.Stat(".env"); err == nil {
		return nil // .env already exists
	}

	// Check if .env.example exists
	if _, err := os.Stat(".env.example"); os.IsNotExist(err) {
		return fmt.Errorf(".env.example not found")
	}

	// Copy .env.example to .env
	source, err := os.Open(".env.example")
	if err != nil {
		return fmt.Errorf("failed to open .env.example: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(".env")
	if err != nil {
		return fmt.Errorf("failed to create .env: %w", err)
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	if err != nil {
		return fmt.Errorf("failed to copy .env.example to .env: %w", err)
	}

	log.Println("Created .env file from .env.example")
	return nil
}
