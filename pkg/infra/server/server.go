// Package server runs a gin engine behind net/http with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	apierrors "github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/infra/middleware"
	options "github.com/kart-io/okr-assistant/pkg/options/server/http"
	"github.com/kart-io/okr-assistant/pkg/response"
)

// ShutdownHook runs after the listener has stopped accepting requests.
type ShutdownHook func(ctx context.Context) error

// Server is the HTTP server.
type Server struct {
	opts   *options.Options
	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	hooks  []ShutdownHook
}

// New creates a server whose engine runs mws before any route. Routes are
// registered on Engine() afterwards so every group inherits the chain.
func New(opts *options.Options, mws ...gin.HandlerFunc) *Server {
	if opts == nil {
		opts = options.NewOptions()
	}
	gin.SetMode(opts.Mode)

	engine := gin.New()
	engine.ContextWithFallback = true
	engine.HandleMethodNotAllowed = true
	engine.Use(mws...)

	notFound := func(c *gin.Context) {
		resp := response.Err(apierrors.ErrRouteNotFound, "").
			WithRequestID(middleware.GetRequestID(c.Request.Context()))
		defer response.Release(resp)
		c.JSON(resp.HTTPStatus(), resp)
	}
	engine.NoRoute(notFound)
	engine.NoMethod(notFound)

	return &Server{opts: opts, engine: engine}
}

// Engine returns the gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// OnShutdown registers hooks, run in reverse registration order.
func (s *Server) OnShutdown(hooks ...ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hooks...)
}

// Addr returns the bound address once Run is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on opts.Addr and serves until ctx is cancelled or the
// listener fails, then shuts down within opts.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infow("HTTP server started", "addr", ln.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Server shutting down...")
	case serveErr = <-errCh:
		logger.Errorw("HTTP server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.shutdown(shutdownCtx))
}

func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	hooks := append([]ShutdownHook(nil), s.hooks...)
	s.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
		logger.Info("HTTP server stopped")
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
