// Package httpapi exposes a read-only debug/dump HTTP surface alongside
// the control-plane channel: router/producer/consumer state dumps,
// liveness, metrics, and swagger UI, the same collection of concerns
// the teacher's pkg/httpserver wraps as a *Server around a gin.Engine —
// rebuilt on a plain net/http.Server since the teacher's own wrapper
// threads through an etcd service registry with no source in the
// retrieved corpus.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	_defaultReadTimeout  = 5 * time.Second
	_defaultWriteTimeout = 5 * time.Second
	_defaultShutdownWait = 5 * time.Second
)

// Server wraps a net/http.Server bound to a *gin.Engine.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New starts listening on addr in the background. Call Shutdown to stop it.
func New(handler http.Handler, addr string, log zerolog.Logger) *Server {
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  _defaultReadTimeout,
			WriteTimeout: _defaultWriteTimeout,
		},
		log: log.With().Str("component", "httpapi").Logger(),
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("debug http server stopped")
		}
	}()
	return s
}

// Shutdown gracefully stops the server, bounded by _defaultShutdownWait.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), _defaultShutdownWait)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
