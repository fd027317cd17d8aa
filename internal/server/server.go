package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"ride-dispatcher/internal/handlers"
)

// Server wraps the HTTP server and its handler
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	addr       string
	log        *zap.Logger
}

// Config holds server configuration
type Config struct {
	Addr string // e.g., "127.0.0.1:8080" or "127.0.0.1:0" for random port
	// RequestTimeout bounds write time. Dispatch runs can be slow when the routing backend retries.
	RequestTimeout time.Duration
}

// New creates a server (does not start it)
func New(cfg Config, h *handlers.Handler, log *zap.Logger) *Server {
	writeTimeout := cfg.RequestTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           Handler(h, log),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		addr: cfg.Addr,
		log:  log,
	}
}

// Handler builds the routed API behind the middleware chain
func Handler(h *handlers.Handler, log *zap.Logger) http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/api/v1/health", h.HandleHealthCheck)
	router.POST("/api/v1/dispatch", h.HandleDispatch)
	router.GET("/api/v1/runs", h.HandleListRuns)
	router.GET("/api/v1/runs/:id", h.HandleGetRun)
	router.DELETE("/api/v1/runs/:id", h.HandleDeleteRun)
	router.DELETE("/api/v1/distance-cache", h.HandleClearDistanceCache)
	router.NotFound = http.HandlerFunc(notFound)

	corsHandler := cors.New(cors.Options{
		AllowOriginFunc:  isLocalOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return alice.New(corsHandler.Handler, recoverPanic(log), requestLogger(log)).Then(router)
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	s.log.Info("[HTTP] Starting server", zap.String("addr", actualAddr))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("[HTTP] Server error", zap.Error(err))
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
