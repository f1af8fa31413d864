// Package migrate runs EnsureCollection/EnsureIndexes against the
// configured vector store backend, standing in for the teacher's
// registrymigrate.RunAll sweep over relational store migrators.
package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/vectorstore/pgvector"
	"github.com/chirino/memory-service/internal/vectorstore/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the vector store collection and its payload indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "vector-backend",
				Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_BACKEND"),
				Destination: (*string)(&cfg.VectorBackend),
				Value:       string(cfg.VectorBackend),
				Usage:       "Vector store backend (qdrant|pgvector)",
			},
			&cli.StringFlag{
				Name:        "vector-collection",
				Sources:     cli.EnvVars("MEMORY_SERVICE_VECTOR_COLLECTION"),
				Destination: &cfg.VectorCollection,
				Value:       cfg.VectorCollection,
				Usage:       "Collection/table name",
			},
			&cli.StringFlag{
				Name:        "qdrant-host",
				Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_HOST"),
				Destination: &cfg.QdrantHost,
				Value:       cfg.QdrantHost,
				Usage:       "Qdrant host",
			},
			&cli.IntFlag{
				Name:        "qdrant-port",
				Sources:     cli.EnvVars("MEMORY_SERVICE_QDRANT_PORT"),
				Destination: &cfg.QdrantPort,
				Value:       cfg.QdrantPort,
				Usage:       "Qdrant gRPC port",
			},
			&cli.StringFlag{
				Name:        "pgvector-url",
				Sources:     cli.EnvVars("MEMORY_SERVICE_PGVECTOR_URL"),
				Destination: &cfg.PGVectorURL,
				Usage:       "Postgres DSN for the pgvector backend",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx = config.WithContext(ctx, &cfg)

			var store interface {
				EnsureCollection(context.Context) error
				EnsureIndexes(context.Context) error
				Name() string
			}
			var err error
			switch cfg.VectorBackend {
			case config.VectorBackendPGVector:
				store, err = pgvector.Open(cfg.PGVectorURL, cfg.VectorCollection)
			default:
				store, err = qdrant.Dial(qdrant.Config{
					Host:       cfg.QdrantHost,
					Port:       cfg.QdrantPort,
					APIKey:     cfg.QdrantAPIKey,
					UseTLS:     cfg.QdrantUseTLS,
					Collection: cfg.VectorCollection,
				})
			}
			if err != nil {
				return err
			}

			log.Info("running vector store migrations", "backend", store.Name(), "collection", cfg.VectorCollection)
			if err := store.EnsureCollection(ctx); err != nil {
				return err
			}
			if err := store.EnsureIndexes(ctx); err != nil {
				return err
			}
			log.Info("vector store migrations completed")
			return nil
		},
	}
}
