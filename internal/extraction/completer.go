package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4-1106-preview"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOpenAIURL   = "https://api.openai.com/v1"
)

// Request is a single completion request.
type Request struct {
	Prompt      string
	Temperature float64
	// JSONObject asks the model to answer with a JSON object only.
	JSONObject bool
}

// Completer sends a prompt to a language model and returns its raw answer.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterConfig configures NewCompleter.
type CompleterConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewCompleter builds the completer for cfg.Provider.
func NewCompleter(ctx context.Context, cfg CompleterConfig, log zerolog.Logger) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAICompleter(cfg, log), nil
	case ProviderGemini:
		return NewGeminiCompleter(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("NewCompleter: unknown provider %q", cfg.Provider)
	}
}

// OpenAICompleter calls the chat/completions endpoint.
type OpenAICompleter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewOpenAICompleter returns an OpenAI completer.
func NewOpenAICompleter(cfg CompleterConfig, log zerolog.Logger) *OpenAICompleter {
	c := &OpenAICompleter{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
	if c.model == "" {
		c.model = DefaultOpenAIModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultOpenAIURL
	}
	if cfg.Timeout == 0 {
		c.httpClient.Timeout = 2 * time.Minute
	}
	return c
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"temperature": req.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.JSONObject {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	start := time.Now()
	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	c.log.Debug().
		Str("model", c.model).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("completion received")
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func (c *OpenAICompleter) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn().Err(err).Msg("openai response body close error")
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// GeminiCompleter calls Gemini through the genai SDK.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// NewGeminiCompleter creates the genai client. An empty API key leaves the
// SDK to pick credentials from its own environment variables.
func NewGeminiCompleter(ctx context.Context, cfg CompleterConfig, log zerolog.Logger) (*GeminiCompleter, error) {
	cc := &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1beta"},
	}
	if cfg.APIKey != "" {
		cc.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiCompleter: create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiCompleter{client: client, model: model, log: log}, nil
}

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, req Request) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.JSONObject {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	g.log.Debug().Str("model", g.model).Int("bytes", len(text)).Msg("completion received")
	return text, nil
}
