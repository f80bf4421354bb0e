package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/rules"
)

// RuleSource yields the executable rules for a purpose. Implementations
// filter out rules that should not contribute, such as deprecated ones.
type RuleSource interface {
	RulesByPurpose(ctx context.Context, p semantic.Purpose) ([]*rules.Rule, error)
}

// Engine evaluates the rule population against analysis reports and shapes
// the results into advisor reports.
type Engine struct {
	source      RuleSource
	mapper      Mapper
	replayLimit int64
}

// NewEngine wires an engine. replayLimit bounds per-rule parallelism during
// bulk historical evaluation; values below 1 fall back to 4.
func NewEngine(source RuleSource, mapper Mapper, replayLimit int) *Engine {
	if replayLimit < 1 {
		replayLimit = 4
	}
	return &Engine{source: source, mapper: mapper, replayLimit: int64(replayLimit)}
}

type purposeOutcome struct {
	agg       float64
	triggered []TriggeredRule
}

func (e *Engine) evaluatePurpose(ctx context.Context, p semantic.Purpose, rep *report.AnalysisReport) (purposeOutcome, error) {
	rs, err := e.source.RulesByPurpose(ctx, p)
	if err != nil {
		return purposeOutcome{}, err
	}
	scores := make([]float64, 0, len(rs))
	triggered := make([]TriggeredRule, 0, len(rs))
	for _, r := range rs {
		v, err := r.Execute(rep)
		if err != nil {
			return purposeOutcome{}, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		scores = append(scores, v)
		if v != 0 {
			triggered = append(triggered, TriggeredRule{RuleID: r.ID, Name: r.Name, RawScore: v})
		}
	}
	return purposeOutcome{agg: Aggregate(p, scores), triggered: triggered}, nil
}

// Advise runs the three purposes in parallel against the report, then
// synthesizes the weighted final decision.
func (e *Engine) Advise(ctx context.Context, rep *report.AnalysisReport, userID string, w Weights) (*Report, error) {
	var mu sync.Mutex
	outcomes := make(map[semantic.Purpose]purposeOutcome, 3)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range semantic.Purposes() {
		p := p
		g.Go(func() error {
			out, err := e.evaluatePurpose(gctx, p, rep)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			mu.Lock()
			outcomes[p] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decision := outcomes[semantic.PurposeDecisionSignal]
	risk := outcomes[semantic.PurposeRiskLevel]
	opportunity := outcomes[semantic.PurposeOpportunityRating]
	finalDecision := Synthesize(decision.agg, risk.agg, opportunity.agg, w)

	rec := func(p semantic.Purpose, score float64, out purposeOutcome) FinalRecommendation {
		label, advice := e.mapper.Map(p, score)
		return FinalRecommendation{
			Purpose:        p,
			FinalScore:     score,
			Label:          label,
			Recommendation: advice,
			TriggeredRules: out.triggered,
		}
	}

	adv := &Report{
		Ticker:      rep.Ticker,
		UserID:      userID,
		GeneratedAt: time.Now().UTC(),
		Recommendations: []FinalRecommendation{
			rec(semantic.PurposeDecisionSignal, finalDecision, decision),
			rec(semantic.PurposeRiskLevel, risk.agg, risk),
			rec(semantic.PurposeOpportunityRating, opportunity.agg, opportunity),
		},
	}

	log.Debug().
		Str("ticker", rep.Ticker).
		Str("user_id", userID).
		Float64("decision", finalDecision).
		Float64("risk", risk.agg).
		Float64("opportunity", opportunity.agg).
		Msg("Advisor evaluation complete")

	return adv, nil
}

// Replay evaluates each rule over a report series, bounding rule-level
// parallelism with a weighted semaphore. Scores keep input order per rule.
func (e *Engine) Replay(ctx context.Context, rs []*rules.Rule, reps []*report.AnalysisReport) (map[string][]float64, error) {
	sem := semaphore.NewWeighted(e.replayLimit)
	var mu sync.Mutex
	out := make(map[string][]float64, len(rs))

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range rs {
		r := r
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			scores := make([]float64, len(reps))
			for i, rep := range reps {
				v, err := r.Execute(rep)
				if err != nil {
					return fmt.Errorf("rule %s at row %d: %w", r.ID, i, err)
				}
				scores[i] = v
			}
			mu.Lock()
			out[r.ID] = scores
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
