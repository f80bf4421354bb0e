package scheduler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/application"
	"github.com/stockrun/stockrun/internal/backtest"
)

// Built-in job types.
const (
	TypePreloadRetry    = "preload.retry"
	TypeBacktestNightly = "backtest.nightly"
)

// Preloader is the slice of the orchestrator the retry job drives.
type Preloader interface {
	Ready() bool
	PreloadAll(ctx context.Context) error
}

// Sweeper prepares backtest contexts for a set of tickers.
type Sweeper interface {
	PrepareAll(ctx context.Context, tickers []string) error
}

// PreloadRetry returns a runner that re-runs the preload until the
// service is warm. Once warm it is a no-op, so the job can stay
// scheduled.
func PreloadRetry(p Preloader) Runner {
	return func(ctx context.Context) error {
		if p.Ready() {
			log.Debug().Msg("Preload retry skipped, service already warm")
			return nil
		}
		return p.PreloadAll(ctx)
	}
}

// NightlyBacktest returns a runner that prepares a backtest context for
// every ticker the universe lists. Tickers are resolved at fire time.
func NightlyBacktest(sweeper Sweeper, tickers func() []string) Runner {
	return func(ctx context.Context) error {
		list := tickers()
		log.Info().Int("tickers", len(list)).Msg("Nightly backtest sweep starting")
		return sweeper.PrepareAll(ctx, list)
	}
}

// StandardRunners wires the built-in job types to the live orchestrator
// and backtest manager.
func StandardRunners(orch *application.Orchestrator, manager *backtest.Manager) map[string]Runner {
	return map[string]Runner{
		TypePreloadRetry:    PreloadRetry(orch),
		TypeBacktestNightly: NightlyBacktest(manager, orch.Meta().Tickers),
	}
}
