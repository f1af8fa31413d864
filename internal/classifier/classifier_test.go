package classifier

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/model"
)

func TestClassifyViaLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": "{\"primary_sector\":\"procedural\",\"secondary_sectors\":[\"semantic\"],\"confidence\":0.9,\"semantic_tags\":[\"docker\"],\"generated_title\":\"Deploy steps\"}"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3.1", 5*time.Second, gobreaker.Settings{})
	result := c.Classify(t.Context(), "", "Run docker deploy steps")

	require.Equal(t, model.SectorProcedural, result.PrimarySector)
	require.Equal(t, []model.Sector{model.SectorSemantic}, result.SecondarySectors)
	require.Equal(t, 0.9, result.Confidence)
	require.Equal(t, "Deploy steps", result.GeneratedTitle)
}

func TestClassifyFallsBackOnUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", "llama3.1", 200*time.Millisecond, gobreaker.Settings{})
	result := c.Classify(t.Context(), "", "yesterday we discussed the meeting notes")
	require.Equal(t, model.SectorEpisodic, result.PrimarySector)
	require.Equal(t, 0.5, result.Confidence)
}

func TestNormalizeClampsConfidence(t *testing.T) {
	result := normalize(llmClassification{PrimarySector: "bogus", Confidence: 5}, "t", "content")
	require.Equal(t, model.SectorSemantic, result.PrimarySector)
	require.Equal(t, 1.0, result.Confidence)
}

func TestNormalizeLimitsSecondaryToTwoAndExcludesPrimary(t *testing.T) {
	result := normalize(llmClassification{
		PrimarySector:    "semantic",
		SecondarySectors: []string{"semantic", "procedural", "emotional", "reflective"},
	}, "t", "content")
	require.Len(t, result.SecondarySectors, 2)
	require.NotContains(t, result.SecondarySectors, model.SectorSemantic)
}
