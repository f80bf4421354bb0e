// Package news runs the NLP side of a report: sentiment, named entities and
// impact per article, evaluated by leaf models that load once and are shared
// across requests, plus a roll-up summary over the article set.
package news

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// SentimentModel scores one text's tone.
type SentimentModel interface {
	Score(ctx context.Context, text string) (report.Sentiment, KeywordHits, error)
}

// NERModel extracts named entities from one text.
type NERModel interface {
	Entities(ctx context.Context, text string) ([]report.Entity, error)
}

// ImpactModel grades how much one text is likely to move the stock.
type ImpactModel interface {
	Assess(ctx context.Context, text string) (report.Impact, error)
}

// KeywordHits lists the lexicon words that drove a sentiment score.
type KeywordHits struct {
	Positive []string
	Negative []string
}

// Leaves bundles the three leaf models one pipeline evaluates per article.
type Leaves struct {
	Sentiment SentimentModel
	NER       NERModel
	Impact    ImpactModel
}

// Sentiment labels.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

var positiveWords = map[string]bool{
	"beat": true, "beats": true, "record": true, "growth": true, "raised": true,
	"upgrade": true, "upgraded": true, "bullish": true, "upside": true,
	"buyback": true, "confidence": true, "strong": true, "surge": true,
	"rally": true, "outperform": true, "profit": true, "expands": true,
	"partnership": true, "momentum": true, "improving": true, "gain": true,
}

var negativeWords = map[string]bool{
	"miss": true, "missed": true, "misses": true, "cut": true, "cuts": true,
	"downgrade": true, "downgraded": true, "bearish": true, "downside": true,
	"lawsuit": true, "probe": true, "investigation": true, "recall": true,
	"weak": true, "weaker": true, "decline": true, "loss": true, "warned": true,
	"disruption": true, "delays": true, "lowered": true, "concern": true,
	"plunge": true, "fraud": true, "default": true, "bankruptcy": true,
}

// impactKeywords maps trigger words to their impact grade. High beats
// moderate when both match.
var impactKeywords = map[string]report.ImpactLevel{
	"earnings": report.ImpactHigh, "guidance": report.ImpactHigh,
	"merger": report.ImpactHigh, "acquisition": report.ImpactHigh,
	"bankruptcy": report.ImpactHigh, "fraud": report.ImpactHigh,
	"lawsuit": report.ImpactHigh, "investigation": report.ImpactHigh,
	"recall": report.ImpactHigh, "fda": report.ImpactHigh,
	"buyback": report.ImpactModerate, "dividend": report.ImpactModerate,
	"upgrade": report.ImpactModerate, "downgrade": report.ImpactModerate,
	"partnership": report.ImpactModerate, "contract": report.ImpactModerate,
	"outlook": report.ImpactModerate, "regulatory": report.ImpactModerate,
	"product": report.ImpactLow, "conference": report.ImpactLow,
	"interview": report.ImpactLow, "appointment": report.ImpactLow,
}

// lexiconSentiment is the default sentiment leaf: a keyword lexicon with a
// confidence proportional to how one-sided the matches are.
type lexiconSentiment struct{}

func (lexiconSentiment) Score(_ context.Context, text string) (report.Sentiment, KeywordHits, error) {
	var hits KeywordHits
	for _, w := range tokenize(text) {
		if positiveWords[w] {
			hits.Positive = appendUnique(hits.Positive, w)
		}
		if negativeWords[w] {
			hits.Negative = appendUnique(hits.Negative, w)
		}
	}

	pos, neg := len(hits.Positive), len(hits.Negative)
	total := pos + neg
	if total == 0 {
		return report.Sentiment{Label: LabelNeutral, Score: report.F(0.5)}, hits, nil
	}

	dominant := pos
	label := LabelPositive
	if neg > pos {
		dominant = neg
		label = LabelNegative
	} else if neg == pos {
		return report.Sentiment{Label: LabelNeutral, Score: report.F(0.5)}, hits, nil
	}
	conf := 0.5 + 0.5*float64(dominant)/float64(total)
	if conf > 0.99 {
		conf = 0.99
	}
	return report.Sentiment{Label: label, Score: report.F(conf)}, hits, nil
}

// capitalizedNER is the default entity leaf: consecutive capitalized tokens
// become ORG entities, all-caps short tokens become TICKER.
type capitalizedNER struct{}

func (capitalizedNER) Entities(_ context.Context, text string) ([]report.Entity, error) {
	var out []report.Entity
	seen := map[string]bool{}
	add := func(group, word string) {
		key := group + ":" + word
		if word == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, report.Entity{Group: group, Word: word})
	}

	words := strings.Fields(text)
	var run []string
	flush := func() {
		if len(run) > 0 {
			add("ORG", strings.Join(run, " "))
			run = nil
		}
	}
	for i, raw := range words {
		w := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		switch {
		case w == "":
			flush()
		case isAllUpper(w) && len(w) >= 2 && len(w) <= 5:
			flush()
			add("TICKER", w)
		case unicode.IsUpper([]rune(w)[0]) && i > 0:
			// Sentence-initial capitals are skipped: they are usually not
			// names, and the cost of a miss is lower than the noise.
			run = append(run, w)
		default:
			flush()
		}
	}
	flush()
	return out, nil
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// keywordImpact is the default impact leaf: the worst grade among matched
// trigger words, unknown when nothing matches.
type keywordImpact struct{}

func (keywordImpact) Assess(_ context.Context, text string) (report.Impact, error) {
	level := report.ImpactUnknown
	var matched []string
	for _, w := range tokenize(text) {
		grade, ok := impactKeywords[w]
		if !ok {
			continue
		}
		matched = appendUnique(matched, w)
		if rank(grade) > rank(level) {
			level = grade
		}
	}
	sort.Strings(matched)
	return report.Impact{Level: level, MatchedKeywords: matched}, nil
}

func rank(l report.ImpactLevel) int {
	switch l {
	case report.ImpactHigh:
		return 3
	case report.ImpactModerate:
		return 2
	case report.ImpactLow:
		return 1
	default:
		return 0
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func appendUnique(list []string, w string) []string {
	for _, x := range list {
		if x == w {
			return list
		}
	}
	return append(list, w)
}
