// Package serve wires the memory service's collaborators from a Config and
// runs until the context is cancelled. There is no HTTP or gRPC listener:
// the service is consumed as a Go API (by an embedder process, a cron-style
// external scheduler for Cleanup/RecalculateScores, or tests), so serve's
// job is construction and lifecycle, not request routing.
package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"
	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-service/internal/classifier"
	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/cryptutil"
	"github.com/chirino/memory-service/internal/dek"
	"github.com/chirino/memory-service/internal/embedder"
	"github.com/chirino/memory-service/internal/memoryservice"
	"github.com/chirino/memory-service/internal/vectorstore"
	"github.com/chirino/memory-service/internal/vectorstore/pgvector"
	"github.com/chirino/memory-service/internal/vectorstore/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Construct the memory service and run until signalled to stop",
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, store, err := Build(ctx, &cfg)
			if err != nil {
				return err
			}
			log.Info("memory service ready", "vector_backend", store.Name(), "collection", cfg.VectorCollection)

			<-ctx.Done()
			log.Info("shutting down")
			return nil
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "master-key-secret",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_MASTER_KEY_SECRET"),
			Destination: &cfg.MasterKeySecret,
			Value:       cfg.MasterKeySecret,
			Usage:       "Secret the master key is derived from via PBKDF2",
		},
		&cli.StringFlag{
			Name:        "dek-registry-backend",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DEK_REGISTRY_BACKEND"),
			Destination: &cfg.DEKRegistryBackend,
			Value:       cfg.DEKRegistryBackend,
			Usage:       "DEK registry backend (memory|postgres)",
		},
		&cli.StringFlag{
			Name:        "dek-registry-db-url",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_DEK_REGISTRY_DB_URL"),
			Destination: &cfg.DEKRegistryDBURL,
			Usage:       "Database URL for the postgres DEK registry backend",
		},

		&cli.StringFlag{
			Name:        "vector-backend",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_BACKEND"),
			Destination: (*string)(&cfg.VectorBackend),
			Value:       string(cfg.VectorBackend),
			Usage:       "Vector store backend (" + joinNames() + ")",
		},
		&cli.StringFlag{
			Name:        "vector-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_COLLECTION"),
			Destination: &cfg.VectorCollection,
			Value:       cfg.VectorCollection,
			Usage:       "Collection/table name the memory records are stored under",
		},
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
			Usage:       "Qdrant host",
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
			Usage:       "Qdrant gRPC port",
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "qdrant-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Value:       cfg.QdrantUseTLS,
			Usage:       "Use TLS when dialing Qdrant",
		},
		&cli.StringFlag{
			Name:        "pgvector-url",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_PGVECTOR_URL"),
			Destination: &cfg.PGVectorURL,
			Usage:       "Postgres DSN for the pgvector backend",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-on-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_MIGRATE_ON_START"),
			Destination: &cfg.VectorMigrateOnStart,
			Value:       cfg.VectorMigrateOnStart,
			Usage:       "Run EnsureCollection/EnsureIndexes against the vector store before serving",
		},

		&cli.StringFlag{
			Name:        "llm-base-url",
			Category:    "Classifier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_LLM_BASE_URL"),
			Destination: &cfg.LLMBaseURL,
			Value:       cfg.LLMBaseURL,
			Usage:       "Ollama-compatible base URL used to classify new memories",
		},
		&cli.StringFlag{
			Name:        "llm-model",
			Category:    "Classifier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_LLM_MODEL"),
			Destination: &cfg.LLMModel,
			Value:       cfg.LLMModel,
			Usage:       "Model name passed to the classifier endpoint",
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Category:    "Classifier:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_LLM_TIMEOUT"),
			Destination: &cfg.LLMTimeout,
			Value:       cfg.LLMTimeout,
			Usage:       "Request timeout for classifier calls",
		},

		&cli.StringFlag{
			Name:        "embedder-base-url",
			Category:    "Embedder:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDER_BASE_URL"),
			Destination: &cfg.EmbedderBaseURL,
			Value:       cfg.EmbedderBaseURL,
			Usage:       "Ollama-compatible base URL used to embed memories and queries",
		},
		&cli.StringFlag{
			Name:        "embedder-model",
			Category:    "Embedder:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDER_MODEL"),
			Destination: &cfg.EmbedderModel,
			Value:       cfg.EmbedderModel,
			Usage:       "Model name passed to the embedder endpoint",
		},
		&cli.DurationFlag{
			Name:        "embedder-timeout",
			Category:    "Embedder:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDER_TIMEOUT"),
			Destination: &cfg.EmbedderTimeout,
			Value:       cfg.EmbedderTimeout,
			Usage:       "Request timeout for embedder calls",
		},

		&cli.IntFlag{
			Name:        "embedding-dims",
			Category:    "Embedder:",
			Sources:     cli.EnvVars("MEMORY_SERVICE_EMBEDDING_DIMS"),
			Destination: &cfg.EmbeddingDims,
			Value:       cfg.EmbeddingDims,
			Usage:       "Vector dimensionality stored in the vector index",
		},
	}
}

func joinNames() string {
	return string(config.VectorBackendQdrant) + "|" + string(config.VectorBackendPGVector)
}

// Build constructs a memoryservice.Service and its vector store backend from
// cfg. The migrate sub-command does not call it; it opens its own store.
func Build(ctx context.Context, cfg *config.Config) (*memoryservice.Service, vectorstore.Store, error) {
	manager, err := cryptutil.NewManager(cfg.MasterKeySecret)
	if err != nil {
		return nil, nil, fmt.Errorf("build crypto manager: %w", err)
	}

	registry, err := buildDEKRegistry(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	envelope := cryptutil.NewEnvelope(manager, registry)

	store, err := buildVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	breakerSettings := gobreaker.Settings{
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
	}
	classifierClient := classifier.New(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMTimeout, breakerSettings)
	embedderClient := embedder.New(cfg.EmbedderBaseURL, cfg.EmbedderModel, cfg.EmbeddingDims, cfg.EmbedderTimeout, breakerSettings)

	svc := memoryservice.New(cfg, envelope, classifierClient, embedderClient, store)
	return svc, store, nil
}

func buildDEKRegistry(ctx context.Context, cfg *config.Config) (dek.Registry, error) {
	switch cfg.DEKRegistryBackend {
	case "", "memory":
		return dek.NewMemoryRegistry(), nil
	case "postgres":
		return dek.NewPostgresRegistry(ctx, cfg.DEKRegistryDBURL)
	default:
		return nil, fmt.Errorf("unknown dek registry backend %q", cfg.DEKRegistryBackend)
	}
}

func buildVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	var store vectorstore.Store
	var err error
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		store, err = qdrant.Dial(qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.VectorCollection,
		})
	case config.VectorBackendPGVector:
		store, err = pgvector.Open(cfg.PGVectorURL, cfg.VectorCollection)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open vector store %q: %w", cfg.VectorBackend, err)
	}

	if cfg.VectorMigrateOnStart {
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure collection: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return store, nil
}
