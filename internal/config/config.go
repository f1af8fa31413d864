// Package config holds process-wide configuration for the memory service
// core: master key material, collaborator endpoints, and vector store
// connection settings. Values are populated by cmd/serve and cmd/migrate
// from MEMORY_SERVICE_-prefixed environment variables and CLI flags.
package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context, or nil if absent.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// VectorBackend selects the Vector Store Driver implementation.
type VectorBackend string

const (
	VectorBackendQdrant   VectorBackend = "qdrant"
	VectorBackendPGVector VectorBackend = "pgvector"
)

// IDStrategy selects how new memory record ids are generated.
type IDStrategy string

const (
	// IDStrategyDigest derives a deterministic id from user, title, content
	// prefix and instant, matching the original implementation.
	IDStrategyDigest IDStrategy = "digest"
	// IDStrategyUUID generates a random UUIDv7.
	IDStrategyUUID IDStrategy = "uuid"
)

// Config holds all configuration for the memory service core.
type Config struct {
	// MasterKeySecret is the operator-supplied secret the master key is
	// derived from via PBKDF2-HMAC-SHA256 (100,000 iterations, fixed salt).
	MasterKeySecret string

	// EmbeddingDims is the fixed embedding vector width (1024 per spec).
	EmbeddingDims int

	// LLM (classifier) provider.
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	// Embedder provider.
	EmbedderBaseURL string
	EmbedderModel   string
	EmbedderTimeout time.Duration

	// Circuit breaker tuning shared by classifier and embedder clients.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	// Vector store.
	VectorBackend     VectorBackend
	VectorCollection  string
	QdrantHost        string
	QdrantPort        int
	QdrantAPIKey      string
	QdrantUseTLS      bool
	PGVectorURL       string
	VectorMigrateOnStart bool

	// DEK Registry backend ("memory" or "postgres").
	DEKRegistryBackend string
	DEKRegistryDBURL    string

	IDStrategy IDStrategy

	// Background operation tuning (spec.md §4.1 cleanup/recalculate_scores).
	CleanupScoreThreshold float64
	CleanupSampleSize     int
	CleanupBatchSize      int
	RetryMaxAttempts      int
	RetryBaseDelay        time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingDims:         1024,
		LLMModel:              "llama3.1",
		LLMTimeout:            300 * time.Second,
		EmbedderModel:         "mxbai-embed-large",
		EmbedderTimeout:       300 * time.Second,
		BreakerMaxRequests:    3,
		BreakerInterval:       0,
		BreakerTimeout:        30 * time.Second,
		VectorBackend:         VectorBackendQdrant,
		VectorCollection:      "mem0",
		QdrantHost:            "localhost",
		QdrantPort:            6334,
		VectorMigrateOnStart:  true,
		DEKRegistryBackend:    "memory",
		IDStrategy:            IDStrategyDigest,
		CleanupScoreThreshold: 0.3,
		CleanupSampleSize:     5,
		CleanupBatchSize:      100,
		RetryMaxAttempts:      3,
		RetryBaseDelay:        10 * time.Second,
	}
}
