// Package cli holds the initialization steps shared by the bilancio
// binaries: env loading, logging, config validation and the common
// infrastructure constructors.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/log"
	"bilancio/internal/remote"
	"bilancio/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL / LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: component,
		Format:    os.Getenv("LOG_FORMAT"),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads a .env file for local development. Missing files are
// fine; production deployments configure through the environment.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the local cache database or exits.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to open local cache", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitRemote constructs the configured remote store or exits.
func InitRemote(ctx context.Context, logger *log.Logger, cfg *config.Config) remote.Store {
	store, err := backend.New(ctx, backend.Config{
		Kind:          backend.Kind(cfg.RemoteBackend),
		RemoteDir:     cfg.RemoteDir,
		RemoteLatency: cfg.RemoteLatency,
	}, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize remote store", log.FieldError, err, log.FieldBackend, cfg.RemoteBackend)
		os.Exit(1)
	}
	return store
}

// InitAMQP connects to the broker when an URL is configured. A missing URL
// returns nil, which every publish site treats as "events disabled".
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, no broker URL configured")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", log.FieldError, err)
		os.Exit(1)
	}
	return client
}

// SignalContext returns a context cancelled on SIGINT/SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownTimeout bounds graceful shutdown across the binaries.
const ShutdownTimeout = 10 * time.Second
