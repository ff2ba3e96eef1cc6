package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"serverstf/internal/shared/goroutine"
	"serverstf/internal/shared/logger"
)

// ServeMetrics runs an HTTP listener exposing /metrics until the
// context is cancelled. An empty addr disables the listener and
// returns immediately.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logger.Interface) error {
	if addr == "" {
		return nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	goroutine.SafeGo(log, "metrics-listener", func() {
		log.Infow("metrics listener started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	})

	select {
	case err := <-errChan:
		return fmt.Errorf("metrics listener failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("metrics listener shutdown error", "error", err)
			return err
		}
		log.Infow("metrics listener stopped")
		return nil
	}
}
