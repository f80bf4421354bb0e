package news

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stockrun/stockrun/internal/data"
	"github.com/stockrun/stockrun/internal/domain/report"
)

// Loader materializes the leaf models. The default loader returns the
// built-in lexicon models; deployments with real NLP weights plug their own.
type Loader func(ctx context.Context) (Leaves, error)

// DefaultLoader returns the lexicon leaves.
func DefaultLoader(context.Context) (Leaves, error) {
	return Leaves{
		Sentiment: lexiconSentiment{},
		NER:       capitalizedNER{},
		Impact:    keywordImpact{},
	}, nil
}

// Analyzer runs the per-article pipeline. Leaf models load once; a failed
// load leaves the analyzer cold so the next preload or request retries.
type Analyzer struct {
	loader Loader
	cpu    *semaphore.Weighted

	mu     sync.Mutex
	leaves Leaves
	loaded bool
}

// NewAnalyzer builds an analyzer over the given loader; nil means the
// built-in lexicon models. cpu bounds concurrent article scoring.
func NewAnalyzer(loader Loader, cpu *semaphore.Weighted) *Analyzer {
	if loader == nil {
		loader = DefaultLoader
	}
	return &Analyzer{loader: loader, cpu: cpu}
}

// Preload loads the leaf models if they are not resident yet.
func (a *Analyzer) Preload(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil
	}
	leaves, err := a.loader(ctx)
	if err != nil {
		return fmt.Errorf("load news models: %w", err)
	}
	if leaves.Sentiment == nil || leaves.NER == nil || leaves.Impact == nil {
		return fmt.Errorf("news loader returned incomplete leaves")
	}
	a.leaves = leaves
	a.loaded = true
	log.Info().Msg("News models loaded")
	return nil
}

// Ready reports whether the leaf models are resident.
func (a *Analyzer) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

func (a *Analyzer) ensure(ctx context.Context) (Leaves, error) {
	if err := a.Preload(ctx); err != nil {
		return Leaves{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leaves, nil
}

// Analyze builds the news section for the ticker. Articles fan out in
// parallel and each article's three leaf models run concurrently; results
// keep the input order (newest first as the store returns them).
func (a *Analyzer) Analyze(ctx context.Context, ticker string, items []data.NewsItem) (*report.NewsSection, error) {
	leaves, err := a.ensure(ctx)
	if err != nil {
		return nil, err
	}

	articles := make([]report.ArticleReport, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if a.cpu != nil {
				if err := a.cpu.Acquire(gctx, 1); err != nil {
					return err
				}
				defer a.cpu.Release(1)
			}
			ar, err := analyzeArticle(gctx, leaves, item)
			if err != nil {
				return fmt.Errorf("article %s: %w", item.ID, err)
			}
			articles[i] = ar
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	section := &report.NewsSection{
		Ticker:   ticker,
		Articles: articles,
		Summary:  summarize(articles),
	}
	log.Debug().Str("ticker", ticker).Int("articles", len(articles)).
		Str("overall", section.Summary.OverallLabel).
		Msg("News analysis complete")
	return section, nil
}

func analyzeArticle(ctx context.Context, leaves Leaves, item data.NewsItem) (report.ArticleReport, error) {
	text := item.Title + ". " + item.Body

	var (
		sentiment report.Sentiment
		hits      KeywordHits
		entities  []report.Entity
		impact    report.Impact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sentiment, hits, err = leaves.Sentiment.Score(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = leaves.NER.Entities(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		impact, err = leaves.Impact.Assess(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.ArticleReport{}, err
	}

	return report.ArticleReport{
		ArticleID:   item.ID,
		Title:       item.Title,
		PublishedAt: item.PublishedAt,
		Sentiment:   sentiment,
		NER:         report.NER{Entities: entities},
		Impact:      impact,
		KeywordEvidence: report.KeywordEvidence{
			Positive: hits.Positive,
			Negative: hits.Negative,
		},
	}, nil
}

// summarize rolls per-article sentiment into one signed score in [-1, 1]:
// each article contributes its confidence with the label's sign, neutral
// articles contribute zero.
func summarize(articles []report.ArticleReport) report.NewsSummary {
	if len(articles) == 0 {
		return report.NewsSummary{OverallLabel: LabelNeutral, OverallScore: report.F(0)}
	}

	var sum float64
	for _, a := range articles {
		score := report.Val(a.Sentiment.Score, 0)
		switch a.Sentiment.Label {
		case LabelPositive:
			sum += score
		case LabelNegative:
			sum -= score
		}
	}
	overall := sum / float64(len(articles))

	label := LabelNeutral
	if overall > 0.15 {
		label = LabelPositive
	} else if overall < -0.15 {
		label = LabelNegative
	}
	return report.NewsSummary{
		OverallLabel: label,
		OverallScore: report.F(overall),
		ArticleCount: len(articles),
	}
}
