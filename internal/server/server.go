// Package server wires the route handlers into an http.Server with the
// middleware chain and the timeouts the deployment expects.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/NeilR2s/cold-start-marketplace/internal/api"
	"github.com/NeilR2s/cold-start-marketplace/internal/observability/logging"
)

type Config struct {
	Addr string
	// APIPrefix is the version prefix the CRUD routes live under.
	APIPrefix   string
	CORSOrigins []string
	Logger      *slog.Logger
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	prefix := strings.TrimSpace(cfg.APIPrefix)
	if prefix == "" {
		prefix = "/api/v1"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc(prefix+"/blobs/images", handler.UploadImage)
	mux.HandleFunc(prefix+"/blobs/files", handler.UploadFile)
	mux.HandleFunc(prefix+"/users/", handler.Users)
	mux.HandleFunc("/", handler.Index)

	policy, err := newCORSPolicy(cfg.CORSOrigins)
	if err != nil {
		return nil, err
	}

	handlerChain := http.Handler(mux)
	handlerChain = corsMiddleware(policy, cfg.Logger, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: cfg.Logger}, nil
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
