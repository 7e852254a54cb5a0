package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcdev12/musicbingo/go/internal/live/gateway"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// serve runs the gateway and its HTTP server next to the runtime loops until
// a signal arrives or any of them fails.
func serve(ctx context.Context, port string, svc *gateway.Service) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	gateway.RegisterHealthCheck(mux)
	server := gateway.NewServer(":"+port, mux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.Start(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
