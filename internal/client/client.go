// Package client talks to the remote reasoning and context caching
// endpoints: Gemini through google.golang.org/genai, or a local Ollama
// server for reasoning only.
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Roles accepted in chat history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// DefaultImageMIMEType is assumed for images sent without a data URL header.
const DefaultImageMIMEType = "image/png"

// Grounding is the project context attached to a reasoning request: the
// name of a published context cache, the raw document, or both.
type Grounding struct {
	CacheName string
	Context   string
}

// Message is one turn of chat history.
type Message struct {
	Role string
	Text string
}

// Image is an inline image attached to a chat message.
type Image struct {
	MIMEType string
	Data     []byte
}

// ArchitectRequest asks for a structured design proposal.
type ArchitectRequest struct {
	Prompt    string
	Grounding Grounding
}

// ArchitectReply is the structured proposal returned by the architect.
type ArchitectReply struct {
	Thought string `json:"thought"`
	Plan    string `json:"plan"`
	Code    string `json:"code"`
}

// ChatRequest is one chat message with prior history.
type ChatRequest struct {
	Message   string
	History   []Message
	Image     *Image
	Grounding Grounding
}

// Reasoner answers architect and chat requests.
type Reasoner interface {
	Architect(ctx context.Context, req ArchitectRequest) (*ArchitectReply, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Close() error
}

// Cacher publishes a context document to the remote context cache and
// returns the cache name.
type Cacher interface {
	CreateCache(ctx context.Context, content string) (string, error)
}

// NormalizeRole maps history roles onto user/model. "ai" and "assistant"
// are accepted as model.
func NormalizeRole(role string) (string, error) {
	switch strings.ToLower(role) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleModel, "ai", "assistant":
		return RoleModel, nil
	default:
		return "", fmt.Errorf("unknown chat role %q", role)
	}
}

// ParseImage decodes a data URL ("data:image/jpeg;base64,...") or bare
// base64. Bare data is assumed to be DefaultImageMIMEType.
func ParseImage(s string) (*Image, error) {
	mimeType := DefaultImageMIMEType
	payload := s

	if header, data, ok := strings.Cut(s, ","); ok {
		payload = data
		if rest, found := strings.CutPrefix(header, "data:"); found {
			if mt, _, _ := strings.Cut(rest, ";"); mt != "" {
				mimeType = mt
			}
		}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	return &Image{MIMEType: mimeType, Data: data}, nil
}

// architectPrompt frames the user request with the project context.
func architectPrompt(prompt, projectContext string) string {
	return "CONTEXT:\n" + projectContext + "\n\nUSER REQUEST: " + prompt
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
