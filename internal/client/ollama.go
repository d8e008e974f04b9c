package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"archon/internal/config"
	"archon/internal/logging"
	"archon/internal/metrics"
)

// OllamaClient reasons with a local or self-hosted Ollama server. It has
// no context cache, so grounding is always sent as raw text.
type OllamaClient struct {
	client          *api.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaClient creates a new Ollama API client.
func NewOllamaClient(cfg *config.Config) (*OllamaClient, error) {
	if cfg.Model.Name == "" {
		return nil, fmt.Errorf("model name is required")
	}

	rawURL := cfg.API.OllamaBaseURL
	if rawURL == "" {
		rawURL = config.DefaultOllamaBaseURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}

	// Warn if using unencrypted HTTP to a non-localhost host
	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host",
				"host", host,
				"recommendation", "use HTTPS for remote Ollama servers")
		}
	}

	timeout := cfg.API.HTTPTimeout
	if timeout == 0 {
		timeout = config.DefaultHTTPTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if cfg.API.OllamaKey != "" {
		httpClient.Transport = &authTransport{
			base:   http.DefaultTransport,
			apiKey: cfg.API.OllamaKey,
		}
	}

	return &OllamaClient{
		client:          api.NewClient(baseURL, httpClient),
		model:           cfg.Model.Name,
		temperature:     cfg.Model.Temperature,
		maxOutputTokens: cfg.Model.MaxOutputTokens,
	}, nil
}

// Model returns the model name used for every request.
func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) options() map[string]any {
	opts := map[string]any{"temperature": c.temperature}
	if c.maxOutputTokens > 0 {
		opts["num_predict"] = c.maxOutputTokens
	}
	return opts
}

// chat runs a non-streaming chat request and returns the full reply.
func (c *OllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	start := time.Now()
	var b strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		if resp.Done {
			logging.Debug("ollama response complete",
				"model", c.model,
				"input_tokens", resp.PromptEvalCount,
				"output_tokens", resp.EvalCount,
				"duration", time.Since(start))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Architect asks for a structured design proposal. A cache name in the
// grounding is ignored.
func (c *OllamaClient) Architect(ctx context.Context, req ArchitectRequest) (*ArchitectReply, error) {
	if req.Grounding.CacheName != "" && req.Grounding.Context == "" {
		logging.Warn("ollama cannot read context caches; request has no project context",
			"cache", req.Grounding.CacheName)
	}

	text, err := c.chat(ctx, &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: architectInstruction},
			{Role: "user", Content: architectPrompt(req.Prompt, req.Grounding.Context)},
		},
		Stream:  Ptr(false),
		Format:  json.RawMessage(`"json"`),
		Options: c.options(),
	})
	if err != nil {
		metrics.RecordReasoning("architect", false)
		return nil, &ReasoningError{Op: "architect", Err: err}
	}

	reply, err := ParseArchitectReply(text)
	if err != nil {
		metrics.RecordReasoning("architect", false)
		return nil, &ReasoningError{Op: "architect", Err: err}
	}
	metrics.RecordReasoning("architect", true)
	return reply, nil
}

// Chat sends one message, with optional image, after the given history.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]api.Message, 0, len(req.History)+2)
	if req.Grounding.Context != "" {
		messages = append(messages, api.Message{
			Role:    "system",
			Content: "Project files for reference:\n" + req.Grounding.Context,
		})
	}
	for _, m := range req.History {
		role, err := NormalizeRole(m.Role)
		if err != nil {
			metrics.RecordReasoning("chat", false)
			return "", &ReasoningError{Op: "chat", Err: err}
		}
		if role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, api.Message{Role: role, Content: m.Text})
	}

	last := api.Message{Role: "user", Content: req.Message}
	if req.Image != nil {
		last.Images = []api.ImageData{req.Image.Data}
	}
	messages = append(messages, last)

	reply, err := c.chat(ctx, &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   Ptr(false),
		Options:  c.options(),
	})
	if err != nil {
		metrics.RecordReasoning("chat", false)
		return "", &ReasoningError{Op: "chat", Err: err}
	}
	metrics.RecordReasoning("chat", true)
	return reply, nil
}

// Close releases the client.
func (c *OllamaClient) Close() error {
	return nil
}
