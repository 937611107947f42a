package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sadewadee/phpworld/internal/config"
)

// Server is the peripheral FastCGI front proxy's HTTP listener
//: it never holds PHP object handles or a wire
// connection of its own, only an http.Server forwarding to the
// upstream pool through Router.
type Server struct {
	cfg     *config.ProxyConfig
	logger  *slog.Logger
	http    *http.Server
	router  *Router
	metrics *Metrics
}

// New creates a new front-proxy server.
func New(cfg *config.ProxyConfig, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger}

	s.metrics = NewMetrics()
	s.router = NewRouter(cfg, logger)

	s.http = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.buildMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	s.logger.Info("phpworld-fpmproxy starting",
		"address", s.cfg.Server.Address,
		"upstream", s.cfg.Upstream.Address,
		"tls", s.cfg.Server.TLS.Auto,
	)

	if s.cfg.Server.TLS.Auto || (s.cfg.Server.TLS.Cert != "" && s.cfg.Server.TLS.Key != "") {
		return s.startTLS()
	}
	return s.http.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("phpworld-fpmproxy shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) startTLS() error {
	if s.cfg.Server.TLS.Cert != "" && s.cfg.Server.TLS.Key != "" {
		return s.http.ListenAndServeTLS(s.cfg.Server.TLS.Cert, s.cfg.Server.TLS.Key)
	}

	if !s.cfg.Server.TLS.Auto {
		return fmt.Errorf("TLS enabled but no cert/key provided and auto-TLS is disabled")
	}

	tlsConfig, redirectSrv, err := SetupACME(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("configuring ACME: %w", err)
	}
	_ = redirectSrv // kept alive for the process lifetime by the caller

	s.http.TLSConfig = tlsConfig
	return s.http.ListenAndServeTLS("", "")
}

func (s *Server) buildMiddleware(handler http.Handler) http.Handler {
	// CoreMiddleware collapses recovery + request ID + early hints +
	// logging into one handler with one pooled response writer.
	handler = CoreMiddleware(s.logger)(handler)

	if s.cfg.Metrics.Enabled {
		handler = s.metrics.Middleware(s.cfg.Metrics.Path)(handler)
	}

	// Compression is outermost (wraps everything including metrics).
	handler = CompressionMiddleware()(handler)

	return handler
}
