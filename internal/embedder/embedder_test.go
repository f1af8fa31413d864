package embedder

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

func TestEmbedViaLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "mxbai-embed-large", 3, 5*time.Second, gobreaker.Settings{})
	vec := c.Embed(t.Context(), "hello world")
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestEmbedDegradesToZeroVectorOnFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", "mxbai-embed-large", 1024, 200*time.Millisecond, gobreaker.Settings{})
	vec := c.Embed(t.Context(), "hello world")
	require.Len(t, vec, 1024)
	for _, v := range vec {
		require.Equal(t, 0.0, v)
	}
}
