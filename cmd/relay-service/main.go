package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jhpark-dev/video-relay/internal/config"
	relaydiscord "github.com/jhpark-dev/video-relay/internal/discord"
	"github.com/jhpark-dev/video-relay/internal/relay"
	"github.com/jhpark-dev/video-relay/internal/status"
	"github.com/jhpark-dev/video-relay/internal/tenant"
	"github.com/jhpark-dev/video-relay/internal/transfer"
	"github.com/jhpark-dev/video-relay/shared/logger"
	"github.com/jhpark-dev/video-relay/shared/postgresql"
	"github.com/jhpark-dev/video-relay/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("RELAY_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/relay-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_BOT_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting relay service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize tenant store. A missing or corrupt file-backed store degrades
	// to an empty tenant set; only the postgres backend can fail here.
	store, dbClient, err := initTenantStore(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tenant store: %w", err)
	}
	defer func() {
		if dbClient != nil {
			dbClient.Close()
		}
	}()

	// Initialize RabbitMQ client. The broker is the one unrecoverable startup
	// dependency: if it stays unreachable the process exits non-zero.
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Discord session and relay pipeline
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}

	transferManager := transfer.NewManager(
		cfg.Transfer.MaxFileSize,
		cfg.Transfer.DownloadTimeout,
		cfg.Transfer.TempDir,
		appLogger.Logger,
	)

	outputGateway := relaydiscord.NewGateway(session, appLogger.Logger)
	orchestrator := relay.NewOrchestrator(transferManager, outputGateway, appLogger.Logger)

	submitTimeout := cfg.Backend.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 10 * time.Second
	}
	submitter := relay.NewSubmitter(cfg.Backend.BaseURL, cfg.RabbitMQ.QueuePrefix, submitTimeout, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Startup bootstrap: bind every known tenant queue first, then start
	// consuming, so the broker topology is complete before the first message
	// is handled.
	tenantIDs, err := store.ListTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	for _, tenantID := range tenantIDs {
		if err := rabbitClient.EnsureTenantQueue(tenantID); err != nil {
			return fmt.Errorf("failed to provision tenant %s: %w", tenantID, err)
		}
	}

	for _, tenantID := range tenantIDs {
		if err := rabbitClient.StartConsuming(ctx, tenantID, orchestrator.HandleDelivery); err != nil {
			return fmt.Errorf("failed to start consuming for tenant %s: %w", tenantID, err)
		}
	}

	appLogger.Info("Tenant queues provisioned",
		slog.Int("tenants", len(tenantIDs)),
	)

	// Bot wiring: a setup command provisions the tenant's queue live.
	bot := relaydiscord.NewBot(&relaydiscord.Config{
		Session:   session,
		Store:     store,
		Submitter: submitter,
		Provisioner: relaydiscord.ProvisionerFunc(func(ctx context.Context, tenantID string) error {
			return rabbitClient.AddTenant(ctx, tenantID, orchestrator.HandleDelivery)
		}),
		CommandPrefix: cfg.Discord.CommandPrefix,
		Logger:        appLogger.Logger,
	})

	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer func() {
		if err := bot.Stop(); err != nil {
			appLogger.Error("Failed to close Discord session",
				slog.Any("error", err),
			)
		}
	}()

	appLogger.Info("Discord session opened")

	// Status HTTP server
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := status.SetupRouter(&status.Dependencies{
		Logger: appLogger.Logger,
		Store:  store,
		Broker: rabbitClient,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Status server failed",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Relay service is running",
		slog.String("status_address", addr),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Status server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop dispatchers before the deferred broker close.
	cancel()

	appLogger.Info("Relay service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initTenantStore builds the configured tenant store backend. The returned
// postgresql client is non-nil only for the postgres backend and must be
// closed by the caller.
func initTenantStore(cfg *config.Config, logger *slog.Logger) (tenant.Store, *postgresql.Client, error) {
	switch cfg.Tenants.Backend {
	case config.TenantBackendPostgres:
		dbClient, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return tenant.NewPGStore(dbClient, logger), dbClient, nil

	default:
		store, err := tenant.NewFileStore(cfg.Tenants.FilePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		ExchangeName:  cfg.Exchange,
		QueuePrefix:   cfg.QueuePrefix,
		RetryAttempts: cfg.Connection.RetryAttempts,
		RetryInterval: cfg.Connection.RetryInterval,
		Heartbeat:     cfg.Connection.Heartbeat,
	}, logger)
}
