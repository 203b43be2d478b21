package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/config"
	"stockwatch/internal/database"
	"stockwatch/internal/handler"
	"stockwatch/internal/kv"
	"stockwatch/internal/kv/dynamo"
	"stockwatch/internal/kv/memory"
	"stockwatch/internal/kv/postgres"
	"stockwatch/internal/notify"
	"stockwatch/internal/recipient"
	"stockwatch/internal/repository"
	"stockwatch/internal/router"
	"stockwatch/internal/service"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting stockwatch API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the key-value backend
	backend, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Initialize repositories
	categoryRepo := repository.NewCategoryRepository(backend, logger)
	productRepo := repository.NewProductRepository(backend, logger)

	// Initialize alerting
	publisher, err := newPublisher(ctx, cfg.Alerts, logger)
	if err != nil {
		return err
	}

	recipients, err := newDirectory(ctx, cfg.Recipients, logger)
	if err != nil {
		return err
	}

	// Initialize services
	categoryService := service.NewCategoryService(categoryRepo, logger)
	productService := service.NewProductService(productRepo, categoryRepo, recipients, publisher, logger)

	// Initialize HTTP handlers
	categoryHandler := handler.NewCategoryHandler(categoryService, logger)
	productHandler := handler.NewProductHandler(productService, logger)

	// Initialize router
	verifier := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	mux := router.New(categoryHandler, productHandler, verifier, cfg.Store.RequestTimeout, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("backend", cfg.Store.Backend).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// newBackend builds the configured backend and a function releasing it.
func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (kv.Backend, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		backend := postgres.New(pool, logger)
		if err := backend.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return backend, pool.Close, nil

	case config.BackendDynamoDB:
		client, err := database.NewDynamoClient(ctx, cfg.DynamoDB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize dynamodb: %w", err)
		}
		return dynamo.New(client, cfg.DynamoDB.Table, logger), func() {}, nil

	default:
		logger.Warn().Msg("using in-memory backend, data is lost on restart")
		return memory.New(), func() {}, nil
	}
}

// newPublisher returns the SNS publisher when enabled and a log-only
// publisher otherwise.
func newPublisher(ctx context.Context, cfg config.AlertsConfig, logger zerolog.Logger) (notify.Publisher, error) {
	if !cfg.SNSEnabled {
		logger.Info().Msg("SNS alerts disabled, low-stock alerts will only be logged")
		return notify.NewLogPublisher(logger), nil
	}

	awsCfg, err := database.LoadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SNS publisher: %w", err)
	}
	return notify.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.TopicARN, logger), nil
}

// newDirectory resolves manager recipients from Cognito, or from a file with
// optional S3 fallback.
func newDirectory(ctx context.Context, cfg config.RecipientsConfig, logger zerolog.Logger) (recipient.Directory, error) {
	if cfg.Source == config.RecipientsCognito {
		awsCfg, err := database.LoadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cognito directory: %w", err)
		}
		return recipient.NewCognitoDirectory(cip.NewFromConfig(awsCfg), cfg.UserPoolID, cfg.ManagerGroup, logger), nil
	}

	fileLoader := recipient.NewFileLoader(logger)
	var s3Loader recipient.Loader

	if cfg.S3Enabled {
		awsCfg, err := database.LoadAWSConfig(ctx, cfg.Region)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			s3Loader = recipient.NewS3Loader(s3.NewFromConfig(awsCfg), cfg.S3Bucket, logger)
		}
	} else {
		logger.Info().Msg("using local file system for recipient files (S3 disabled)")
	}

	loader := recipient.NewFallbackLoader(s3Loader, fileLoader, cfg.S3Prefix, cfg.S3Enabled, logger)
	return recipient.NewLoaderDirectory(loader, logger, cfg.Files...), nil
}
