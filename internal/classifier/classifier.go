// Package classifier implements the Classifier Client: an LLM-backed
// cognitive sector classifier with a deterministic keyword fallback, wrapped
// in a circuit breaker so a down LLM degrades fast instead of stalling
// concurrent add() calls.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"

	"github.com/chirino/memory-service/internal/model"
)

// sectorDefinitions mirrors the prompt's sector descriptions; order is
// significant for prompt stability across calls.
var sectorDefinitions = []struct {
	Sector model.Sector
	Desc   string
}{
	{model.SectorEpisodic, "Specific events, conversations, meetings, what happened"},
	{model.SectorSemantic, "Facts, knowledge, tech stack, user preferences, configurations"},
	{model.SectorProcedural, "Steps, workflows, how-to guides, operations, deployment"},
	{model.SectorEmotional, "Feelings, satisfaction, complaints, excitement, frustration"},
	{model.SectorReflective, "Insights, patterns, lessons learned, recommendations"},
}

func isKnownSector(s model.Sector) bool {
	for _, d := range sectorDefinitions {
		if d.Sector == s {
			return true
		}
	}
	return false
}

// Result is the normalized classification of a memory.
type Result struct {
	PrimarySector    model.Sector
	SecondarySectors []model.Sector
	Confidence       float64
	SemanticTags     []string
	GeneratedTitle   string
}

// Client classifies memory content into cognitive sectors via an Ollama
// LLM, falling back to keyword heuristics when the LLM is unreachable.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Result]
}

// New constructs a Classifier Client.
func New(baseURL, llmModel string, timeout time.Duration, breakerSettings gobreaker.Settings) *Client {
	breakerSettings.Name = "classifier"
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   llmModel,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[Result](breakerSettings),
	}
}

// Classify returns the cognitive classification for a memory's title and
// content. On LLM failure it logs a ProviderDegraded condition and returns
// the keyword-based fallback classification; it never returns an error.
func (c *Client) Classify(ctx context.Context, title, content string) Result {
	result, err := c.breaker.Execute(func() (Result, error) {
		return c.classifyViaLLM(ctx, title, content)
	})
	if err != nil {
		log.Warn("classification degraded, using keyword fallback", "err", err)
		return fallbackClassification(title, content)
	}
	return result
}

type generateRequest struct {
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	Format  string             `json:"format"`
	Stream  bool               `json:"stream"`
	Options map[string]float64 `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type llmClassification struct {
	PrimarySector    string   `json:"primary_sector"`
	SecondarySectors []string `json:"secondary_sectors"`
	Confidence       float64  `json:"confidence"`
	SemanticTags     []string `json:"semantic_tags"`
	GeneratedTitle   string   `json:"generated_title"`
}

func (c *Client) classifyViaLLM(ctx context.Context, title, content string) (Result, error) {
	prompt := buildPrompt(title, content)

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Format:  "json",
		Stream:  false,
		Options: map[string]float64{"temperature": 0.1},
	})
	if err != nil {
		return Result{}, fmt.Errorf("classifier: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("classifier: unexpected status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return Result{}, fmt.Errorf("classifier: decode response envelope: %w", err)
	}

	var raw llmClassification
	if err := json.Unmarshal([]byte(genResp.Response), &raw); err != nil {
		return Result{}, fmt.Errorf("classifier: decode classification json: %w", err)
	}

	return normalize(raw, title, content), nil
}

func buildPrompt(title, content string) string {
	var sb strings.Builder
	for _, d := range sectorDefinitions {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", d.Sector, d.Desc))
	}

	truncated := content
	if len(truncated) > 800 {
		truncated = truncated[:800]
	}
	titleDisplay := title
	if titleDisplay == "" {
		titleDisplay = "N/A"
	}

	return fmt.Sprintf(`Analyze the following memory and classify it into cognitive sectors.

Memory Title: %s
Memory Content:
%s...

Sector Definitions:
%s
Tasks:
1. Determine PRIMARY sector (most relevant one)
2. Determine SECONDARY sectors (0-2 additional relevant sectors)
3. Extract 5-10 semantic keywords/tags
4. If title is empty/missing, generate a concise title (<50 chars)
5. Assign confidence score (0.0-1.0)

Output JSON:
{
  "primary_sector": "semantic",
  "secondary_sectors": ["procedural"],
  "confidence": 0.92,
  "semantic_tags": ["docker", "deployment", "git", "workflow"],
  "generated_title": "Docker deployment workflow"
}

Response (JSON only):`, titleDisplay, truncated, sb.String())
}

func normalize(raw llmClassification, title, content string) Result {
	primary := model.Sector(raw.PrimarySector)
	if !isKnownSector(primary) {
		primary = model.SectorSemantic
	}

	var secondary []model.Sector
	for _, s := range raw.SecondarySectors {
		sec := model.Sector(s)
		if isKnownSector(sec) && sec != primary {
			secondary = append(secondary, sec)
		}
		if len(secondary) == 2 {
			break
		}
	}

	confidence := raw.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	tags := raw.SemanticTags
	if len(tags) == 0 {
		tags = extractKeywords(content)
	}
	if len(tags) > 10 {
		tags = tags[:10]
	}

	generatedTitle := raw.GeneratedTitle
	if title == "" && generatedTitle == "" {
		generatedTitle = truncate(content, 50)
	}
	if generatedTitle == "" {
		generatedTitle = title
	}

	return Result{
		PrimarySector:    primary,
		SecondarySectors: secondary,
		Confidence:       confidence,
		SemanticTags:     tags,
		GeneratedTitle:   generatedTitle,
	}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true,
}

func extractKeywords(content string) []string {
	words := strings.Fields(strings.ToLower(content))
	seen := make(map[string]bool)
	var keywords []string
	for _, w := range words {
		if len(w) <= 4 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	sort.Strings(keywords)
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}
	return keywords
}

func fallbackClassification(title, content string) Result {
	lower := strings.ToLower(content)

	var primary model.Sector
	switch {
	case containsAny(lower, "step", "how to", "guide", "deploy", "install"):
		primary = model.SectorProcedural
	case containsAny(lower, "like", "love", "hate", "frustrated", "happy"):
		primary = model.SectorEmotional
	case containsAny(lower, "yesterday", "meeting", "discussed", "we talked"):
		primary = model.SectorEpisodic
	case containsAny(lower, "should", "recommend", "lesson", "insight"):
		primary = model.SectorReflective
	default:
		primary = model.SectorSemantic
	}

	generatedTitle := title
	if generatedTitle == "" {
		generatedTitle = truncate(content, 50)
	}

	return Result{
		PrimarySector:  primary,
		Confidence:     0.5,
		SemanticTags:   extractKeywords(content),
		GeneratedTitle: generatedTitle,
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
