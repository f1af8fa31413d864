package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasUsableVectorBackend(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, VectorBackendQdrant, cfg.VectorBackend)
	require.Equal(t, 1024, cfg.EmbeddingDims)
	require.Equal(t, IDStrategyDigest, cfg.IDStrategy)
	require.NotZero(t, cfg.LLMTimeout)
	require.NotZero(t, cfg.EmbedderTimeout)
}

func TestWithContextRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VectorCollection = "custom"

	ctx := WithContext(t.Context(), &cfg)
	got := FromContext(ctx)
	require.NotNil(t, got)
	require.Equal(t, "custom", got.VectorCollection)
}

func TestFromContextWithoutConfigReturnsNil(t *testing.T) {
	require.Nil(t, FromContext(t.Context()))
}
