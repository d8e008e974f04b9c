// Package server exposes the caching, architect and chat endpoints over
// HTTP for browser front ends.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"archon/internal/client"
	"archon/internal/config"
	"archon/internal/logging"
	"archon/internal/metrics"
	"archon/internal/ratelimit"
)

// Error messages returned to clients. Details are only logged.
const (
	msgCachingFailed   = "Caching failed"
	msgArchitectFailed = "AI Architect failed to reason."
	msgChatFailed      = "Chat failed"
	msgBadRequest      = "invalid request body"
	msgRateLimited     = "Too many requests"
)

// Server is the HTTP backend.
type Server struct {
	reasoner client.Reasoner
	cacher   client.Cacher
	limiter  *ratelimit.Limiter
	cfg      config.ServerConfig
}

// New creates a server. cacher may be nil when the provider cannot cache.
func New(reasoner client.Reasoner, cacher client.Cacher, cfg config.ServerConfig) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = config.DefaultMaxBodySize
	}
	return &Server{
		reasoner: reasoner,
		cacher:   cacher,
		limiter:  ratelimit.NewLimiter(cfg.RateLimit),
		cfg:      cfg,
	}
}

type cacheRequest struct {
	ProjectFiles string `json:"projectFiles"`
}

type cacheResponse struct {
	CacheName string `json:"cacheName"`
}

type architectRequest struct {
	Prompt         string `json:"prompt"`
	ProjectContext string `json:"projectContext"`
	CacheName      string `json:"cacheName"`
}

type chatPart struct {
	Text string `json:"text"`
}

type chatTurn struct {
	Role  string     `json:"role"`
	Parts []chatPart `json:"parts"`
}

type chatRequest struct {
	Message   string     `json:"message"`
	History   []chatTurn `json:"history"`
	Image     string     `json:"image"`
	CacheName string     `json:"cacheName"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP handler with CORS, request ID and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/cache-codebase", s.handleCacheCodebase)
	mux.HandleFunc("POST /api/architect", s.handleArchitect)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.Handle("GET /metrics", metrics.Handler())

	return metrics.Middleware(s.requestID(s.cors(mux)))
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("backend listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Info("backend shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		logging.Debug("request started", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheCodebase(w http.ResponseWriter, r *http.Request) {
	var req cacheRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := requestIDFrom(r.Context())
	if !s.allow(w, r, ratelimit.EstimateTokens(req.ProjectFiles)) {
		return
	}

	if s.cacher == nil {
		logging.Warn("cache request without caching provider", "request_id", id)
		writeError(w, http.StatusInternalServerError, msgCachingFailed)
		return
	}
	if strings.TrimSpace(req.ProjectFiles) == "" {
		logging.Warn("cache request with empty project files", "request_id", id)
		writeError(w, http.StatusInternalServerError, msgCachingFailed)
		return
	}

	name, err := s.cacher.CreateCache(r.Context(), req.ProjectFiles)
	if err != nil {
		logging.Error("cache creation failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgCachingFailed)
		return
	}
	writeJSON(w, http.StatusOK, cacheResponse{CacheName: name})
}

func (s *Server) handleArchitect(w http.ResponseWriter, r *http.Request) {
	var req architectRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := requestIDFrom(r.Context())
	if !s.allow(w, r, ratelimit.EstimateTokens(req.Prompt)+ratelimit.EstimateTokens(req.ProjectContext)) {
		return
	}
	logging.Info("architect request", "request_id", id, "prompt_chars", len(req.Prompt), "cached", req.CacheName != "")

	reply, err := s.reasoner.Architect(r.Context(), client.ArchitectRequest{
		Prompt: req.Prompt,
		Grounding: client.Grounding{
			CacheName: req.CacheName,
			Context:   req.ProjectContext,
		},
	})
	if err != nil {
		logging.Error("architect failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgArchitectFailed)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := requestIDFrom(r.Context())
	if !s.allow(w, r, ratelimit.EstimateTokens(req.Message)) {
		return
	}

	history := make([]client.Message, 0, len(req.History))
	for _, turn := range req.History {
		var text strings.Builder
		for _, p := range turn.Parts {
			text.WriteString(p.Text)
		}
		history = append(history, client.Message{Role: turn.Role, Text: text.String()})
	}

	var image *client.Image
	if req.Image != "" {
		img, err := client.ParseImage(req.Image)
		if err != nil {
			logging.Warn("chat image rejected", "request_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, msgChatFailed)
			return
		}
		image = img
	}

	reply, err := s.reasoner.Chat(r.Context(), client.ChatRequest{
		Message:   req.Message,
		History:   history,
		Image:     image,
		Grounding: client.Grounding{CacheName: req.CacheName},
	})
	if err != nil {
		logging.Error("chat failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgChatFailed)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// allow applies the per-client limit and writes 429 when it is exceeded.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, estimatedTokens int64) bool {
	key := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		key = host
	}
	if s.limiter.Allow(key, estimatedTokens) {
		return true
	}
	logging.Warn("request rate limited", "request_id", requestIDFrom(r.Context()), "client", key, "path", r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msgRateLimited)
	return false
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}
