package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/polyglotta/polyglotta-backend/internal/logger"
	"github.com/polyglotta/polyglotta-backend/internal/types"
)

// AIClient is the boundary to both oracles: the LLM grammar analyst and the
// embedding model. Both are long-latency remote calls; callers own the
// fallback policy (DegradedAnalysis, skipped embeddings).
type AIClient interface {
	AnalyzeText(ctx context.Context, text, targetLanguage string, profile *types.LanguageProfile) (*types.GrammarAnalysis, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client

	maxRetries int
}

func NewOpenAIClient(log *logger.Logger) (AIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-5.2"
	}

	embed := os.Getenv("OPENAI_EMBED_MODEL")
	if embed == "" {
		embed = "text-embedding-3-small"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		embedModel: embed,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIClient) do(ctx context.Context, method, path string, body any, out any) error {
	// exponential backoff: 1s, 2s, 4s, 8s (cap ~10s)
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- Embeddings ----

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *openAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	req := embeddingsRequest{
		Model: c.embedModel,
		Input: inputs,
	}
	var resp embeddingsResponse
	if err := c.do(ctx, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}

// ---- Grammar analysis (Structured Outputs via text.format json_schema) ----

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
	Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *openAIClient) AnalyzeText(ctx context.Context, text, targetLanguage string, profile *types.LanguageProfile) (*types.GrammarAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text required")
	}

	system := analysisSystemPrompt(targetLanguage, profile)

	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: "Text: \"\"\"\n" + text + "\n\"\"\""},
		},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "grammar_analysis",
		"schema": grammarAnalysisSchema(),
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	var jsonText string
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					jsonText += part.Text
				}
			}
		}
	}
	if jsonText == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}

	var analysis types.GrammarAnalysis
	if err := json.Unmarshal([]byte(jsonText), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis JSON: %w; text=%s", err, jsonText)
	}
	if _, err := types.LevelRank(analysis.Proficiency.EstimatedLevel); err != nil {
		return nil, fmt.Errorf("analysis estimated_level invalid: %w", err)
	}
	return &analysis, nil
}

func analysisSystemPrompt(targetLanguage string, profile *types.LanguageProfile) string {
	var b strings.Builder
	b.WriteString("You are an experienced ")
	b.WriteString(languageName(targetLanguage))
	b.WriteString(" teacher analyzing a learner's text. Identify the grammar concepts ")
	b.WriteString("they attempted, every error with its correction, and assess overall ")
	b.WriteString("proficiency on the CEFR scale. Respond only with the structured JSON.")
	if profile != nil {
		fmt.Fprintf(&b, " The learner's current level is %s with proficiency score %.2f.",
			profile.CurrentLevel, profile.ProficiencyScore)
	}
	return b.String()
}

func languageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "es":
		return "Spanish"
	case "de":
		return "German"
	case "fr":
		return "French"
	default:
		return "English"
	}
}

func grammarAnalysisSchema() map[string]any {
	cefr := map[string]any{"type": "string", "enum": []string{"A1", "A2", "B1", "B2", "C1", "C2"}}
	score := map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	stringList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"proficiency": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"estimated_level":  cefr,
					"confidence":       score,
					"vocabulary_level": cefr,
					"grammar_level":    cefr,
					"fluency_score":    score,
					"coherence_score":  score,
				},
				"required":             []string{"estimated_level", "confidence", "vocabulary_level", "grammar_level", "fluency_score", "coherence_score"},
				"additionalProperties": false,
			},
			"concepts_used": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"concept_name":        map[string]any{"type": "string"},
						"concept_description": map[string]any{"type": "string"},
						"attempted":           map[string]any{"type": "boolean"},
						"correct":             map[string]any{"type": "boolean"},
						"difficulty":          score,
						"user_rating":         score,
						"confidence":          score,
						"examples":            stringList,
						"errors":              stringList,
						"feedback":            map[string]any{"type": "string"},
					},
					"required":             []string{"concept_name", "concept_description", "attempted", "correct", "difficulty", "user_rating", "confidence", "examples", "errors", "feedback"},
					"additionalProperties": false,
				},
			},
			"errors": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error_type":       map[string]any{"type": "string"},
						"severity":         map[string]any{"type": "string", "enum": []string{"minor", "moderate", "severe"}},
						"original_text":    map[string]any{"type": "string"},
						"corrected_text":   map[string]any{"type": "string"},
						"explanation":      map[string]any{"type": "string"},
						"related_concepts": stringList,
						"cefr_level":       cefr,
					},
					"required":             []string{"error_type", "severity", "original_text", "corrected_text", "explanation", "related_concepts", "cefr_level"},
					"additionalProperties": false,
				},
			},
			"strengths":            stringList,
			"weaknesses":           stringList,
			"next_concepts":        stringList,
			"practice_suggestions": stringList,
			"accuracy_score":       score,
			"error_rate":           score,
			"total_errors":         map[string]any{"type": "integer", "minimum": 0},
			"feedback":             map[string]any{"type": "string"},
		},
		"required":             []string{"proficiency", "concepts_used", "errors", "strengths", "weaknesses", "next_concepts", "practice_suggestions", "accuracy_score", "error_rate", "total_errors", "feedback"},
		"additionalProperties": false,
	}
}
