// Package websocket is the gateway that fans cache state out to
// long-lived browser connections: clients subscribe to individual
// servers or tag queries and receive status and match pushes as the
// poller rewrites the cache.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"serverstf/internal/domain/server"
	"serverstf/internal/infrastructure/cache"
	"serverstf/internal/infrastructure/telemetry"
	"serverstf/internal/shared/goroutine"
	"serverstf/internal/shared/logger"
)

// Service accepts websocket connections and runs one client session
// per connection.
type Service struct {
	cache    *cache.Cache
	locator  server.Locator
	metrics  *telemetry.Metrics
	log      logger.Interface
	upgrader websocket.Upgrader
}

// NewService creates the gateway service. locator and metrics may be
// nil.
func NewService(c *cache.Cache, locator server.Locator, metrics *telemetry.Metrics, log logger.Interface) *Service {
	return &Service{
		cache:   c,
		locator: locator,
		metrics: metrics,
		log:     log.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway carries no credentials and serves a public
			// read-mostly feed.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler. Only the root path upgrades;
// everything else is refused.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.log.Infow("client connected", "remote", r.RemoteAddr)
	if s.metrics != nil {
		s.metrics.ClientConnected(1)
		defer s.metrics.ClientConnected(-1)
	}

	session := newClient(conn, s.cache.Handle(), s.locator, s.metrics, s.log.With("remote", r.RemoteAddr))
	session.run(r.Context())
	s.log.Infow("client disconnected", "remote", r.RemoteAddr)
}

// Run serves the gateway on addr until the context is cancelled.
// In-flight sessions end with the context through the server's base
// context.
func (s *Service) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	goroutine.SafeGo(s.log, "gateway-listener", func() {
		s.log.Infow("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	})

	select {
	case err := <-errChan:
		return fmt.Errorf("gateway failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("gateway shutdown error", "error", err)
		}
		s.log.Infow("gateway stopped")
		return nil
	}
}
