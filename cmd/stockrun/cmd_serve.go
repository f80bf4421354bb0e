package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	unwatch := rt.metrics.WatchBacktest(rt.manager)
	defer unwatch()

	// Warm-up runs in the background so the listener is up immediately;
	// requests are rejected with SERVICE_NOT_READY until it completes. The
	// preload gauge flips on the event itself, so a scheduler retry that
	// finishes the job is counted the same as the startup pass.
	warmCtx, stopWarm := context.WithCancel(context.Background())
	defer stopWarm()
	go func() {
		select {
		case <-rt.orch.Warmup().Done():
			rt.metrics.SetWarm(true)
		case <-warmCtx.Done():
		}
	}()
	go func() {
		if err := rt.orch.PreloadAll(warmCtx); err != nil {
			log.Warn().Err(err).Msg("Warm-up incomplete, scheduler will retry")
		}
	}()

	rt.sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := rt.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := rt.sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Scheduled jobs still running at shutdown")
	}
	if err := rt.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
