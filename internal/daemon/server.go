package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// httpServer runs the REST+WS handler and shuts it down gracefully when
// its context is cancelled, the same listen-then-drain shape used across
// the pack's service mains (e.g. manman's health check server).
type httpServer struct {
	addr    string
	handler http.Handler
}

func (s *httpServer) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
