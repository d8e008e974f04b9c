package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"archon/internal/config"
	"archon/internal/logging"
	"archon/internal/metrics"
)

// architectInstruction asks for the {thought, plan, code} reply shape.
const architectInstruction = `You are the project architect, a full-stack engineer who reads the user's frontend code and designs the backend that serves it.

You are given the current project files as context. Study the request against that context and answer with a JSON object of this exact shape:
{
    "thought": "Your reasoning about data relationships, security and scalability.",
    "plan": "A step-by-step implementation plan.",
    "code": "The code that implements the plan, e.g. HTTP routes and data schemas."
}
Return only valid JSON. Do not wrap it in markdown code fences.`

// cacheInstruction is stored with every published context cache.
const cacheInstruction = "You are a Senior Architect. Use the provided frontend context to design matching backends."

// GeminiClient wraps the Google Gemini API.
type GeminiClient struct {
	client           *genai.Client
	model            string
	temperature      float32
	maxOutputTokens  int32
	cacheTTL         time.Duration
	cacheDisplayName string
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg *config.Config) (*GeminiClient, error) {
	apiKey := cfg.API.GetGeminiKey()
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key required.\n\nGet your free API key at: https://aistudio.google.com/apikey\n\nThen set GEMINI_API_KEY or api.gemini_key in the config file")
	}

	clientConfig := &genai.ClientConfig{
		Backend:    genai.BackendGeminiAPI,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: cfg.API.HTTPTimeout},
	}
	if cfg.API.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.API.GeminiBaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logging.Debug("created Gemini client", "model", cfg.Model.Name)

	return &GeminiClient{
		client:           client,
		model:            cfg.Model.Name,
		temperature:      cfg.Model.Temperature,
		maxOutputTokens:  cfg.Model.MaxOutputTokens,
		cacheTTL:         cfg.Cache.TTL,
		cacheDisplayName: cfg.Cache.DisplayName,
	}, nil
}

// Model returns the model name used for every request.
func (c *GeminiClient) Model() string {
	return c.model
}

// CreateCache publishes content as a new context cache and returns its name.
func (c *GeminiClient) CreateCache(ctx context.Context, content string) (string, error) {
	cached, err := c.client.Caches.Create(ctx, c.model, &genai.CreateCachedContentConfig{
		DisplayName:       c.cacheDisplayName,
		TTL:               c.cacheTTL,
		SystemInstruction: genai.NewContentFromText(cacheInstruction, genai.RoleUser),
		Contents:          []*genai.Content{genai.NewContentFromText(content, genai.RoleUser)},
	})
	if err != nil {
		return "", fmt.Errorf("create cached content: %w", err)
	}
	if cached == nil || cached.Name == "" {
		return "", fmt.Errorf("create cached content: %w", ErrEmptyResponse)
	}

	logging.Debug("context cache created", "name", cached.Name, "model", c.model, "ttl", c.cacheTTL)
	return cached.Name, nil
}

// generateConfig returns the per-request generation settings.
func (c *GeminiClient) generateConfig(cacheName string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     Ptr(c.temperature),
		MaxOutputTokens: c.maxOutputTokens,
	}
	if cacheName != "" {
		cfg.CachedContent = cacheName
	}
	return cfg
}

// Architect asks for a structured design proposal grounded in the
// project context.
func (c *GeminiClient) Architect(ctx context.Context, req ArchitectRequest) (*ArchitectReply, error) {
	text := architectPrompt(req.Prompt, req.Grounding.Context)

	genCfg := c.generateConfig(req.Grounding.CacheName)
	genCfg.ResponseMIMEType = "application/json"
	// A request that reads a context cache cannot carry its own system
	// instruction, so the instruction travels with the prompt instead.
	if req.Grounding.CacheName != "" {
		text = architectInstruction + "\n\n" + text
	} else {
		genCfg.SystemInstruction = genai.NewContentFromText(architectInstruction, genai.RoleUser)
	}

	logging.Debug("architect request",
		"model", c.model,
		"cache", req.Grounding.CacheName,
		"prompt_chars", len(req.Prompt),
		"context_chars", len(req.Grounding.Context))

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, genCfg)
	if err != nil {
		metrics.RecordReasoning("architect", false)
		return nil, &ReasoningError{Op: "architect", Err: err}
	}

	reply, err := ParseArchitectReply(resp.Text())
	if err != nil {
		metrics.RecordReasoning("architect", false)
		return nil, &ReasoningError{Op: "architect", Err: err}
	}

	metrics.RecordReasoning("architect", true)
	logging.Info("architect reasoning complete", "model", c.model, "code_chars", len(reply.Code))
	return reply, nil
}

// Chat sends one message, with optional image, after the given history.
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	contents, err := c.chatContents(req)
	if err != nil {
		metrics.RecordReasoning("chat", false)
		return "", &ReasoningError{Op: "chat", Err: err}
	}

	genCfg := c.generateConfig(req.Grounding.CacheName)
	if req.Grounding.CacheName == "" && req.Grounding.Context != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(
			"Project files for reference:\n"+req.Grounding.Context, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		metrics.RecordReasoning("chat", false)
		return "", &ReasoningError{Op: "chat", Err: err}
	}

	reply := resp.Text()
	if reply == "" {
		metrics.RecordReasoning("chat", false)
		return "", &ReasoningError{Op: "chat", Err: ErrEmptyResponse}
	}

	metrics.RecordReasoning("chat", true)
	return reply, nil
}

func (c *GeminiClient) chatContents(req ChatRequest) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role, err := NormalizeRole(m.Role)
		if err != nil {
			return nil, err
		}
		contents = append(contents, genai.NewContentFromText(m.Text, genaiRole(role)))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Message)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	return contents, nil
}

func genaiRole(role string) genai.Role {
	switch role {
	case RoleModel:
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}

// Close releases the client. The genai client holds no connections of
// its own beyond the shared HTTP transport.
func (c *GeminiClient) Close() error {
	return nil
}

// ParseArchitectReply decodes the architect's JSON answer. A surrounding
// markdown code fence is tolerated.
func ParseArchitectReply(text string) (*ArchitectReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	var reply ArchitectReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return nil, fmt.Errorf("malformed architect reply: %w", err)
	}
	return &reply, nil
}
