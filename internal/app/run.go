package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// drainTimeout bounds the graceful HTTP shutdown started when Run's context
// is cancelled.
const drainTimeout = 10 * time.Second

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. Cancellation drains in-flight requests before returning; the rest of
// the teardown belongs to [App.Shutdown].
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return a.httpServer.Shutdown(sctx)
	})

	slog.Info("vocata running",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
