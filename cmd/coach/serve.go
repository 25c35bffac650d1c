package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-coach/internal/httpapi"
	"github.com/park285/cheese-coach/internal/obslog"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpapi.New(a.manager, a.cat, obslog.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		return srv.ListenAndServe(cfg.HTTPAddr)
	})
	g.Go(func() error {
		<-gCtx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func runProbe(cmd *cobra.Command, _ []string) error {
	if !cfg.HasEngine() {
		cmd.Println("no engine configured (set ENGINE_PATH or ENGINE_WS_URL); suggestions use the fallback chooser")
		return nil
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	select {
	case <-a.bridge.Ready():
	case <-time.After(cfg.HandshakeTimeout + time.Second):
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	if cause := a.bridge.Cause(); cause != nil {
		cmd.Printf("engine %s: %v\n", a.bridge.State(), cause)
		return cause
	}
	cmd.Printf("engine %s: %s\n", a.bridge.State(), a.bridge.EngineName())
	return nil
}
