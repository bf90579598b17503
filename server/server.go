// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/poiesic/ragrelay/message"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 10 << 20

// HeaderSessionID carries the session id of a REST request and its response.
const HeaderSessionID = "X-Session-ID"

// HeaderRequestID carries a per-request id.
const HeaderRequestID = "X-Request-ID"

// Handler turns request messages into responses. router.Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg message.Message) []message.Message
	Health(ctx context.Context) message.HealthResponse
}

// Server serves the HTTP API.
type Server struct {
	handler  Handler
	logger   *slog.Logger
	apiKey   string
	limiter  *rate.Limiter
	channels []string

	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithAPIKey requires "Authorization: Bearer <key>" on every route but /health.
// An empty key disables authentication.
func WithAPIKey(key string) Option {
	return func(s *Server) error {
		s.apiKey = key
		return nil
	}
}

// WithRateLimit limits the whole server to limit requests per second with
// the given burst. A zero limit disables rate limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) error {
		if limit < 0 || (limit > 0 && burst < 1) {
			return fmt.Errorf("invalid rate limit %v with burst %d", limit, burst)
		}
		if limit == 0 {
			s.limiter = nil
			return nil
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		return nil
	}
}

// WithChannels restricts POST /stream/{channel} to the named channels.
// By default any channel name is accepted.
func WithChannels(channels ...string) Option {
	return func(s *Server) error {
		s.channels = slices.Clone(channels)
		return nil
	}
}

// WithAddr sets the listen address used by ListenAndServe.
// Default is ":8000".
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithTimeouts sets the HTTP read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = read
		s.writeTimeout = write
		return nil
	}
}

// New creates a server over handler.
func New(handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	s := &Server{
		handler:      handler,
		logger:       slog.Default(),
		addr:         ":8000",
		readTimeout:  30 * time.Second,
		writeTimeout: 120 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	return s, nil
}

// Handler returns the root HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/embeddings/add", s.restRoute(message.TypeEmbeddingsAdd))
	mux.HandleFunc("POST /api/embeddings/search", s.restRoute(message.TypeEmbeddingsSearch))
	mux.HandleFunc("POST /api/embeddings/delete", s.restRoute(message.TypeEmbeddingsDelete))
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/documents/count", s.handleCount)
	mux.HandleFunc("POST /api/rag/query", s.restRoute(message.TypeRAGQuery))
	mux.HandleFunc("POST /api/llm/complete", s.restRoute(message.TypeLLMComplete))

	mux.HandleFunc("POST /stream/{channel}", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	var h http.Handler = mux
	h = s.authenticate(h)
	h = s.rateLimit(h)
	h = s.logRequests(h)
	h = s.recoverPanics(h)
	return h
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.http != nil {
		s.mu.Unlock()
		ln.Close()
		return ErrAlreadyServing
	}
	s.http = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	s.listener = ln
	srv := s.http
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("serving", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

// Addr returns the address being served, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) channelAllowed(channel string) bool {
	return len(s.channels) == 0 || slices.Contains(s.channels, channel)
}
