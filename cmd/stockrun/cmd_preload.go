package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runPreload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	started := time.Now()
	if err := rt.orch.PreloadAll(cmd.Context()); err != nil {
		return err
	}

	log.Info().Int("sectors", len(rt.meta.Sectors())).
		Dur("elapsed", time.Since(started)).Msg("Warm-up complete")
	return nil
}
