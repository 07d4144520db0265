package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// HTTP Server
// ============================================================================
// Serves the host websocket bridge plus two plain endpoints:
//   GET /healthz  liveness and connected host count
//   GET /journal  the study log exactly as persisted
// ============================================================================

// newHTTPMux builds the daemon's mux. Nothing registers on http.DefaultServeMux.
func newHTTPMux(ws *Server, wsPath string, journal *Journal) *http.ServeMux {
	mux := http.NewServeMux()
	ws.Register(mux, wsPath)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "ok clients=%d\n", ws.Hub().ClientCount())
	})

	mux.HandleFunc("GET /journal", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, journal.Text())
	})

	return mux
}

// runHTTPServer serves handler on listenAddr and shuts it down gracefully
// when ctx is canceled.
func runHTTPServer(ctx context.Context, listenAddr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "listen", listenAddr)

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
