package advisor

import (
	"fmt"
	"sort"

	"github.com/stockrun/stockrun/internal/domain/semantic"
)

// Mapper turns a final score into a label and a recommendation sentence.
type Mapper interface {
	Map(p semantic.Purpose, value float64) (label, recommendation string)
}

// Band is one labeled interval of a purpose's score range. A value maps to
// the band with the largest From not exceeding it.
type Band struct {
	From           float64 `yaml:"from"`
	Label          string  `yaml:"label"`
	Recommendation string  `yaml:"recommendation"`
}

// thresholdMapper is the default closed catalog keyed by purpose.
type thresholdMapper struct {
	bands map[semantic.Purpose][]Band
}

// NewMapper builds the default label catalog. Overrides replace the whole
// band list for a purpose; passing nil keeps every default.
func NewMapper(overrides map[semantic.Purpose][]Band) (Mapper, error) {
	bands := map[semantic.Purpose][]Band{
		semantic.PurposeDecisionSignal: {
			{From: -1.0, Label: "STRONG_SELL", Recommendation: "Sell with conviction; signals align to the downside."},
			{From: -0.6, Label: "SELL", Recommendation: "Reduce exposure; the balance of signals is negative."},
			{From: -0.2, Label: "HOLD", Recommendation: "Stay put; signals are mixed or neutral."},
			{From: 0.2, Label: "BUY", Recommendation: "Add exposure; the balance of signals is positive."},
			{From: 0.6, Label: "STRONG_BUY", Recommendation: "Buy with conviction; signals align to the upside."},
		},
		semantic.PurposeRiskLevel: {
			{From: 0.0, Label: "MINIMAL", Recommendation: "Risk is negligible at current readings."},
			{From: 0.2, Label: "LOW", Recommendation: "Risk is contained; normal position sizing applies."},
			{From: 0.4, Label: "MODERATE", Recommendation: "Risk is material; size positions accordingly."},
			{From: 0.6, Label: "HIGH", Recommendation: "Risk is elevated; tighten stops and reduce size."},
			{From: 0.8, Label: "SEVERE", Recommendation: "Risk is severe; avoid new exposure."},
		},
		semantic.PurposeOpportunityRating: {
			{From: 0.0, Label: "NONE", Recommendation: "No attractive setup is present."},
			{From: 0.2, Label: "WEAK", Recommendation: "A marginal setup; patience is cheaper."},
			{From: 0.4, Label: "MODERATE", Recommendation: "A workable setup with average edge."},
			{From: 0.6, Label: "STRONG", Recommendation: "A strong setup; conditions favor entry."},
			{From: 0.8, Label: "EXCEPTIONAL", Recommendation: "An exceptional setup; conditions rarely align this well."},
		},
	}
	for p, over := range overrides {
		if len(over) == 0 {
			continue
		}
		if _, ok := bands[p]; !ok {
			return nil, fmt.Errorf("label override for unknown purpose %q", p)
		}
		bands[p] = over
	}
	for p, bs := range bands {
		sorted := make([]Band, len(bs))
		copy(sorted, bs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
		lo, hi := p.Range()
		if sorted[0].From > lo {
			return nil, fmt.Errorf("purpose %s: bands do not cover the range start %.2f", p, lo)
		}
		if sorted[len(sorted)-1].From > hi {
			return nil, fmt.Errorf("purpose %s: band start beyond the range end %.2f", p, hi)
		}
		bands[p] = sorted
	}
	return &thresholdMapper{bands: bands}, nil
}

// MustMapper is NewMapper with defaults only.
func MustMapper() Mapper {
	m, err := NewMapper(nil)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *thresholdMapper) Map(p semantic.Purpose, value float64) (string, string) {
	bs := m.bands[p]
	if len(bs) == 0 {
		return "UNKNOWN", "No catalog entry for this purpose."
	}
	chosen := bs[0]
	for _, b := range bs[1:] {
		if value >= b.From {
			chosen = b
		}
	}
	return chosen.Label, chosen.Recommendation
}
