package forecast

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/errs"
	"github.com/stockrun/stockrun/internal/models"
)

// Coordinator produces the forecasting section of analysis reports. Handles
// and explainers come from the single-flight cache, so concurrent requests
// for one sector share a single artifact load.
type Coordinator struct {
	store models.ArtifactStore
	cache *models.Cache
	// cpu bounds concurrent predict/explain work; nil leaves it unbounded.
	cpu *semaphore.Weighted

	// Seam for tests that count per-snapshot explainer construction.
	newExplainer func(models.Kernel) (models.Explainer, error)
}

// New wires a coordinator over the artifact store and cache.
func New(store models.ArtifactStore, cache *models.Cache, cpu *semaphore.Weighted) *Coordinator {
	return &Coordinator{
		store:        store,
		cache:        cache,
		cpu:          cpu,
		newExplainer: models.NewExplainer,
	}
}

// HistoryEntry is one input timestamp's forecasting report.
type HistoryEntry struct {
	TS        int64
	Forecasts []report.TaskForecast
}

func (c *Coordinator) acquireCPU(ctx context.Context) (release func(), err error) {
	if c.cpu == nil {
		return func() {}, nil
	}
	if err := c.cpu.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.cpu.Release(1) }, nil
}

func (c *Coordinator) handleFor(ctx context.Context, slug string) (*models.Handle, error) {
	return c.cache.GetOrLoadHandle(ctx, slug, func(ctx context.Context) (*models.Handle, error) {
		raw, err := c.store.FetchArtifact(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact %s: %w", slug, err)
		}
		h, err := models.ParseArtifact(raw)
		if err != nil {
			return nil, err
		}
		log.Info().Str("model", slug).Int("snapshots", len(h.Snapshots)).
			Msg("Model artifact loaded")
		return h, nil
	})
}

func (c *Coordinator) explainerFor(ctx context.Context, slug string, h *models.Handle) (models.Explainer, error) {
	return c.cache.GetOrLoadExplainer(ctx, slug, func(context.Context) (models.Explainer, error) {
		return c.newExplainer(h.MainKernel)
	})
}

func alignFor(k models.Kernel, row FeatureRow) []float64 {
	var means []float64
	if mp, ok := k.(models.MeanProvider); ok {
		means = mp.Means()
	}
	return AlignRow(row, k.Features(), means)
}

// GenerateReport forecasts one as-of feature row: every task runs
// concurrently, and within a task predict and explain run in parallel
// against the same aligned input. lastClose anchors de-normalizing
// processors; tasks without one ignore it.
func (c *Coordinator) GenerateReport(ctx context.Context, row FeatureRow, ticker, sector string, lastClose float64) ([]report.TaskForecast, error) {
	templates := Templates()
	out := make([]report.TaskForecast, len(templates))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range templates {
		i, t := i, t
		g.Go(func() error {
			tf, err := c.runTask(gctx, t, row, sector, lastClose)
			if err != nil {
				return fmt.Errorf("task %s: %w", t.ProblemID, err)
			}
			out[i] = tf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Str("ticker", ticker).Str("sector", sector).Int("tasks", len(out)).
		Msg("Forecasting report generated")
	return out, nil
}

func (c *Coordinator) runTask(ctx context.Context, t Template, row FeatureRow, sector string, lastClose float64) (report.TaskForecast, error) {
	slug := t.Slug(sector)
	h, err := c.handleFor(ctx, slug)
	if err != nil {
		return report.TaskForecast{}, err
	}
	explainer, err := c.explainerFor(ctx, slug, h)
	if err != nil {
		return report.TaskForecast{}, err
	}
	pipeline, err := ResolvePipeline(h.PostProcessors, h.MainKernel.Targets())
	if err != nil {
		return report.TaskForecast{}, err
	}

	aligned := alignFor(h.MainKernel, row)

	var pred []float64
	var evidence []report.TargetExplanation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		release, err := c.acquireCPU(gctx)
		if err != nil {
			return err
		}
		defer release()
		pred, err = h.MainKernel.Predict(aligned)
		return err
	})
	g.Go(func() error {
		release, err := c.acquireCPU(gctx)
		if err != nil {
			return err
		}
		defer release()
		evidence, err = explainer.Explain(aligned)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.TaskForecast{}, err
	}

	pipeline.Apply(pred, lastClose)

	return report.TaskForecast{
		TaskID:       slug,
		TaskMetadata: t.Metadata(),
		Prediction:   report.Floats(pred...),
		Units:        t.Units,
		Evidence:     evidence,
	}, nil
}

// GenerateHistory forecasts every timed row without look-ahead: rows are
// grouped by the snapshot that was freshest at row time, one explainer is
// built per group, and each group's rows run in input order. Snapshot
// kernels are materialized per task and released when the task finishes.
func (c *Coordinator) GenerateHistory(ctx context.Context, rows []TimedRow, ticker, sector string) ([]HistoryEntry, error) {
	out := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = HistoryEntry{TS: r.TS}
	}

	for _, t := range Templates() {
		if err := c.runHistoryTask(ctx, t, rows, sector, out); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ProblemID, err)
		}
	}

	log.Info().Str("ticker", ticker).Str("sector", sector).Int("rows", len(rows)).
		Msg("Forecasting history generated")
	return out, nil
}

func (c *Coordinator) runHistoryTask(ctx context.Context, t Template, rows []TimedRow, sector string, out []HistoryEntry) error {
	slug := t.Slug(sector)
	h, err := c.handleFor(ctx, slug)
	if err != nil {
		return err
	}
	if err := models.BulkLoadSnapshots(ctx, c.store, slug, h); err != nil {
		return err
	}
	defer models.UnloadSnapshots(h)

	pipeline, err := ResolvePipeline(h.PostProcessors, h.MainKernel.Targets())
	if err != nil {
		return err
	}

	// Group row indices by resolved snapshot, keeping input order inside
	// each group.
	groups := make(map[string][]int, len(h.Snapshots))
	for i, r := range rows {
		snap, err := models.SnapshotFor(h, r.TS, models.PolicyLast)
		if err != nil {
			return err
		}
		groups[snap.ID] = append(groups[snap.ID], i)
	}

	md := t.Metadata()
	for _, snap := range h.Snapshots {
		idxs := groups[snap.ID]
		if len(idxs) == 0 {
			continue
		}
		kernel := snap.Kernel()
		if kernel == nil {
			return errs.Internal("forecasting", fmt.Errorf("snapshot %s/%s not materialized", slug, snap.ID))
		}
		explainer, err := c.newExplainer(kernel)
		if err != nil {
			return err
		}

		release, err := c.acquireCPU(ctx)
		if err != nil {
			return err
		}
		for _, i := range idxs {
			aligned := alignFor(kernel, rows[i].Row)
			pred, err := kernel.Predict(aligned)
			if err != nil {
				release()
				return err
			}
			evidence, err := explainer.Explain(aligned)
			if err != nil {
				release()
				return err
			}
			pipeline.Apply(pred, rows[i].Base)
			out[i].Forecasts = append(out[i].Forecasts, report.TaskForecast{
				TaskID:       slug,
				TaskMetadata: md,
				Prediction:   report.Floats(pred...),
				Units:        t.Units,
				Evidence:     evidence,
			})
		}
		release()

		log.Debug().Str("model", slug).Str("snapshot", snap.ID).Int("rows", len(idxs)).
			Msg("Snapshot group evaluated")
	}
	return nil
}

// PreloadForSectors warms the handle and explainer caches for every sector.
// Sectors fan out in parallel; within a sector, tasks load sequentially so
// the artifact store sees bounded concurrency. All failures are collected
// rather than aborting sibling sectors.
func (c *Coordinator) PreloadForSectors(ctx context.Context, sectors []string) error {
	type result struct {
		sector string
		err    error
	}
	results := make([]result, len(sectors))

	g := &errgroup.Group{}
	for i, sector := range sectors {
		i, sector := i, sector
		g.Go(func() error {
			results[i] = result{sector: sector, err: c.preloadSector(ctx, sector)}
			return nil
		})
	}
	g.Wait()

	var failed []string
	var first error
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.sector)
			if first == nil {
				first = r.err
			}
			log.Error().Err(r.err).Str("sector", r.sector).Msg("Sector preload failed")
		}
	}
	if len(failed) > 0 {
		return errs.PreloadFailed(failed, first)
	}
	return nil
}

func (c *Coordinator) preloadSector(ctx context.Context, sector string) error {
	for _, t := range Templates() {
		slug := t.Slug(sector)
		h, err := c.handleFor(ctx, slug)
		if err != nil {
			return fmt.Errorf("%s: %w", slug, err)
		}
		if _, err := c.explainerFor(ctx, slug, h); err != nil {
			return fmt.Errorf("%s: %w", slug, err)
		}
	}
	log.Debug().Str("sector", strings.ToLower(sector)).Msg("Sector models preloaded")
	return nil
}
