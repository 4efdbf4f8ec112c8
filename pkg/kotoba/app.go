// Package kotoba wires the diary service together: configuration parsing,
// store selection, the HTTP API and the command entry points.
package kotoba

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kotoba-app/kotoba/pkg/ai"
	"github.com/kotoba-app/kotoba/pkg/content"
	"github.com/kotoba-app/kotoba/pkg/models"
	"github.com/kotoba-app/kotoba/pkg/store"
	"github.com/kotoba-app/kotoba/pkg/store/postgres"
	"github.com/kotoba-app/kotoba/pkg/store/surrealdb"
)

// Config holds application configuration. SurrealDB is the primary backend;
// PostgresOnly switches the whole store layer to PostgreSQL.
type Config struct {
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	PostgresDSN  string
	PostgresOnly bool

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	ServerPort string
}

// App holds the application state. Collaborators are injected at
// construction so tests can swap in in-memory and scripted replacements.
type App struct {
	store       store.Store
	reassembler *content.Reassembler
	ai          *ai.Service
	transcriber ai.Transcriber
	config      *Config
	log         zerolog.Logger

	sessionMu sync.RWMutex
	sessions  map[string]*models.Account
}

// New creates the application from configuration, connecting the selected
// store backend and the AI provider.
func New(ctx context.Context, config *Config) (*App, error) {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var appStore store.Store
	var err error
	if config.PostgresOnly {
		appStore, err = postgres.NewPostgresStore(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
	} else {
		appStore, err = surrealdb.NewSurrealStore(ctx,
			config.SurrealDBURL,
			config.SurrealDBNS,
			config.SurrealDBDB,
			config.SurrealDBUser,
			config.SurrealDBPass,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		log.Info().Msg("connected to SurrealDB")
	}

	client := ai.NewClient(config.OpenAIKey, config.OpenAIModel, config.OpenAIBaseURL)
	return NewWithDeps(appStore, client, client, log, config), nil
}

// NewWithDeps assembles the application from ready-made collaborators.
func NewWithDeps(s store.Store, completer ai.Completer, transcriber ai.Transcriber, log zerolog.Logger, config *Config) *App {
	return &App{
		store:       s,
		reassembler: content.NewReassembler(s, log),
		ai:          ai.NewService(s, completer, log),
		transcriber: transcriber,
		config:      config,
		log:         log,
		sessions:    make(map[string]*models.Account),
	}
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the underlying store (useful for testing).
func (a *App) Store() store.Store {
	return a.store
}

// Migrate initializes the store schema.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	a.log.Info().Msg("store migrated")
	return nil
}

// getEnv retrieves an environment variable with a fallback default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
