package rules

import (
	"fmt"
	"time"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

var seedTime = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

// treeBuilder accumulates the first construction error so seed trees read
// without per-node error plumbing.
type treeBuilder struct {
	reg *Registry
	err error
}

func (b *treeBuilder) node(name string, children ...Node) Node {
	if b.err != nil {
		return nil
	}
	n, err := b.reg.New(name, nil, children...)
	if err != nil {
		b.err = err
		return nil
	}
	return n
}

// SeedRules builds the default rule population against the given registry.
// The service falls back to these when the rule store is empty.
func SeedRules(reg *Registry) ([]*Rule, error) {
	b := &treeBuilder{reg: reg}

	defs := []struct {
		id, name, desc string
		purpose        semantic.Purpose
		root           Node
	}{
		{
			id:      "seed-momentum-alignment",
			name:    "Momentum alignment",
			desc:    "Agreement of short, mid and long trend directions.",
			purpose: semantic.PurposeDecisionSignal,
			root: b.node("SIGNAL_BLEND",
				b.node("TREND_SHORT_DAILY"),
				b.node("TREND_MID_DAILY"),
				b.node("TREND_LONG_DAILY"),
			),
		},
		{
			id:      "seed-rsi-reversal",
			name:    "RSI reversal",
			desc:    "Buy oversold, sell overbought, otherwise stay neutral.",
			purpose: semantic.PurposeDecisionSignal,
			root: b.node("IF_SIGNAL",
				b.node("LESS_THAN", b.node("RSI_DAILY"), b.node("RSI_OVERSOLD")),
				b.node("SIGNAL_FULL_BUY"),
				b.node("IF_SIGNAL",
					b.node("GREATER_THAN", b.node("RSI_DAILY"), b.node("RSI_OVERBOUGHT")),
					b.node("SIGNAL_FULL_SELL"),
					b.node("SIGNAL_NEUTRAL"),
				),
			),
		},
		{
			id:      "seed-forecast-conviction",
			name:    "Forecast conviction",
			desc:    "Follow the triple barrier class when it clears the probability edge.",
			purpose: semantic.PurposeDecisionSignal,
			root: b.node("IF_SIGNAL",
				b.node("GREATER_THAN", b.node("PROB_UP_5D"), b.node("PROB_EDGE")),
				b.node("SIGNAL_FULL_BUY"),
				b.node("IF_SIGNAL",
					b.node("GREATER_THAN", b.node("PROB_DOWN_5D"), b.node("PROB_EDGE")),
					b.node("SIGNAL_FULL_SELL"),
					b.node("SIGNAL_NEUTRAL"),
				),
			),
		},
		{
			id:      "seed-news-tone",
			name:    "News tone",
			desc:    "Overall news sentiment as a direct signal.",
			purpose: semantic.PurposeDecisionSignal,
			root:    b.node("SIGNAL_CLAMP", b.node("NEWS_SENTIMENT")),
		},
		{
			id:      "seed-volatility-risk",
			name:    "Volatility risk",
			desc:    "Normalized ATR as the baseline risk estimate.",
			purpose: semantic.PurposeRiskLevel,
			root:    b.node("RISK_CLAMP", b.node("ATR_PCT_DAILY")),
		},
		{
			id:      "seed-news-event-risk",
			name:    "News event risk",
			desc:    "Worst of volatility and latest news impact.",
			purpose: semantic.PurposeRiskLevel,
			root: b.node("RISK_PEAK",
				b.node("ATR_PCT_DAILY"),
				b.node("NEWS_TOP_IMPACT"),
			),
		},
		{
			id:      "seed-downside-risk",
			name:    "Downside risk",
			desc:    "Severe risk when the down class clears the probability edge.",
			purpose: semantic.PurposeRiskLevel,
			root: b.node("IF_RISK",
				b.node("GREATER_THAN", b.node("PROB_DOWN_5D"), b.node("PROB_EDGE")),
				b.node("RISK_SEVERE"),
				b.node("RISK_MINIMAL"),
			),
		},
		{
			id:      "seed-pattern-opportunity",
			name:    "Pattern opportunity",
			desc:    "Strength of the best detected pattern.",
			purpose: semantic.PurposeOpportunityRating,
			root:    b.node("OPPORTUNITY_CLAMP", b.node("TOP_PATTERN_SCORE")),
		},
		{
			id:      "seed-upside-opportunity",
			name:    "Upside opportunity",
			desc:    "Rich when forecast and mid trend agree on the upside.",
			purpose: semantic.PurposeOpportunityRating,
			root: b.node("IF_OPPORTUNITY",
				b.node("AND",
					b.node("GREATER_THAN", b.node("PROB_UP_5D"), b.node("PROB_EDGE")),
					b.node("GREATER_THAN", b.node("TREND_MID_DAILY"), b.node("ZERO")),
				),
				b.node("OPPORTUNITY_RICH"),
				b.node("OPPORTUNITY_MODEST"),
			),
		},
	}
	if b.err != nil {
		return nil, fmt.Errorf("build seed rules: %w", b.err)
	}

	out := make([]*Rule, 0, len(defs))
	for _, d := range defs {
		r := &Rule{
			ID:          d.id,
			Name:        d.name,
			Description: d.desc,
			Status:      StatusReady,
			Purpose:     d.purpose,
			CreatedAt:   seedTime,
			UpdatedAt:   seedTime,
			Root:        d.root,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("seed rule %s: %w", d.id, err)
		}
		out = append(out, r)
	}
	return out, nil
}
