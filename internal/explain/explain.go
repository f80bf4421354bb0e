// Package explain renders analysis reports, advisory output and rule trees
// as the plain-text digests the explain endpoints serve. The output is
// markdown-shaped so it reads well in a terminal and in a chat window, but
// nothing downstream parses it.
package explain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/domain/report"
	"github.com/stockrun/stockrun/internal/rules"
)

// Explain kinds accepted by Report.
const (
	KindTechnical   = "technical"
	KindForecasting = "forecasting"
	KindNews        = "news"
	KindAll         = "all"
)

// Report renders the requested section of rep. Empty kind means all.
func Report(rep *report.AnalysisReport, kind string) (string, error) {
	var b strings.Builder
	writeHeader(&b, rep)

	switch kind {
	case "", KindAll:
		writeTechnical(&b, rep.Technical)
		writeForecasts(&b, rep.Forecasting)
		writeNews(&b, rep.News)
	case KindTechnical:
		writeTechnical(&b, rep.Technical)
	case KindForecasting:
		writeForecasts(&b, rep.Forecasting)
	case KindNews:
		writeNews(&b, rep.News)
	default:
		return "", fmt.Errorf("unknown explain kind %q", kind)
	}
	return b.String(), nil
}

func writeHeader(b *strings.Builder, rep *report.AnalysisReport) {
	b.WriteString(fmt.Sprintf("# Analysis Report: %s\n\n", rep.Ticker))
	b.WriteString(fmt.Sprintf("**Generated**: %s\n\n", rep.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
}

func writeTechnical(b *strings.Builder, sec *report.TechnicalSection) {
	b.WriteString("## Technical Analysis\n\n")
	if sec == nil {
		b.WriteString("No technical section in this report.\n\n")
		return
	}
	writeTimeframe(b, "Daily", sec.Daily)
	writeTimeframe(b, "Intraday", sec.Intraday)
}

func writeTimeframe(b *strings.Builder, label string, tf *report.TimeframeReport) {
	if tf == nil {
		return
	}
	b.WriteString(fmt.Sprintf("### %s\n\n", label))

	if len(tf.KeyIndicators) > 0 {
		b.WriteString("| Indicator | Value |\n")
		b.WriteString("|-----------|-------|\n")
		for _, name := range sortedKeys(tf.KeyIndicators) {
			b.WriteString(fmt.Sprintf("| %s | %s |\n", name, num(tf.KeyIndicators[name])))
		}
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("- **Trend short**: %s (%s)\n", tf.Trend.Short.Direction, tf.Trend.Short.Strength))
	b.WriteString(fmt.Sprintf("- **Trend mid**: %s (%s)\n", tf.Trend.Mid.Direction, tf.Trend.Mid.Strength))
	b.WriteString(fmt.Sprintf("- **Trend long**: %s (%s)\n", tf.Trend.Long.Direction, tf.Trend.Long.Strength))
	b.WriteString(fmt.Sprintf("- **Supports**: %s\n", levels(tf.SRLevels.Supports)))
	b.WriteString(fmt.Sprintf("- **Resistances**: %s\n\n", levels(tf.SRLevels.Resistances)))

	if len(tf.Patterns) > 0 {
		b.WriteString("Detected patterns:\n\n")
		for _, p := range tf.Patterns {
			b.WriteString(fmt.Sprintf("- %s (%s, %s, score %.2f, completed %s)\n",
				p.Name, p.Type, p.Sentiment, p.Score, p.Evidence.Date.Format("2006-01-02")))
		}
		b.WriteString("\n")
	}
}

func writeForecasts(b *strings.Builder, tasks []report.TaskForecast) {
	b.WriteString("## Forecasting\n\n")
	if len(tasks) == 0 {
		b.WriteString("No forecasting section in this report.\n\n")
		return
	}
	for _, t := range tasks {
		b.WriteString(fmt.Sprintf("### Task %s\n\n", t.TaskID))
		b.WriteString(fmt.Sprintf("- **Kind**: %s, horizon %d days\n", t.TaskMetadata.Kind, t.TaskMetadata.HorizonDays))
		if t.TaskMetadata.TakeProfitPct != nil && t.TaskMetadata.StopLossPct != nil {
			b.WriteString(fmt.Sprintf("- **Barriers**: tp %s%%, sl %s%%\n",
				num(t.TaskMetadata.TakeProfitPct), num(t.TaskMetadata.StopLossPct)))
		}
		b.WriteString(fmt.Sprintf("- **Prediction** (%s): %s\n\n", t.Units, nums(t.Prediction)))

		for _, ev := range t.Evidence {
			b.WriteString(fmt.Sprintf("Target %s: base %s, outcome %s\n\n", ev.TargetName, num(ev.BaseValue), num(ev.PredictionOutcome)))
			if len(ev.TopFeatures) == 0 {
				continue
			}
			b.WriteString("| Feature | Value | Contribution | Effect |\n")
			b.WriteString("|---------|-------|--------------|--------|\n")
			for _, f := range ev.TopFeatures {
				b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
					f.Feature, num(f.Value), num(f.Contribution), f.Effect))
			}
			b.WriteString("\n")
		}
	}
}

func writeNews(b *strings.Builder, sec *report.NewsSection) {
	b.WriteString("## News Analysis\n\n")
	if sec == nil {
		b.WriteString("No news section in this report.\n\n")
		return
	}
	b.WriteString(fmt.Sprintf("**Overall**: %s (score %s, %d articles)\n\n",
		sec.Summary.OverallLabel, num(sec.Summary.OverallScore), sec.Summary.ArticleCount))

	for _, a := range sec.Articles {
		title := a.Title
		if title == "" {
			title = a.ArticleID
		}
		b.WriteString(fmt.Sprintf("- %s [%s]: sentiment %s (%s), impact %s",
			a.PublishedAt.Format("2006-01-02"), title, a.Sentiment.Label, num(a.Sentiment.Score), a.Impact.Level))
		if len(a.Impact.MatchedKeywords) > 0 {
			b.WriteString(fmt.Sprintf(" (keywords: %s)", strings.Join(a.Impact.MatchedKeywords, ", ")))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// Advisor renders the advisory report: one section per purpose with the
// aggregated score, the mapped label and the rules that fired.
func Advisor(rep *advisor.Report) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Advisory Report: %s\n\n", rep.Ticker))
	b.WriteString(fmt.Sprintf("**User**: %s\n", rep.UserID))
	b.WriteString(fmt.Sprintf("**Generated**: %s\n\n", rep.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	for _, rec := range rep.Recommendations {
		b.WriteString(fmt.Sprintf("## %s\n\n", rec.Purpose))
		b.WriteString(fmt.Sprintf("- **Score**: %.4f\n", rec.FinalScore))
		b.WriteString(fmt.Sprintf("- **Label**: %s\n", rec.Label))
		b.WriteString(fmt.Sprintf("- **Recommendation**: %s\n\n", rec.Recommendation))

		if len(rec.TriggeredRules) == 0 {
			b.WriteString("No rules fired for this purpose.\n\n")
			continue
		}
		b.WriteString("| Rule | Raw score |\n")
		b.WriteString("|------|-----------|\n")
		for _, tr := range rec.TriggeredRules {
			b.WriteString(fmt.Sprintf("| %s (%s) | %.4f |\n", tr.Name, tr.RuleID, tr.RawScore))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Rule renders a rule's metadata and its expression tree in indented
// prefix form, one node per line.
func Rule(r *rules.Rule) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("# Rule: %s\n\n", r.Name))
	b.WriteString(fmt.Sprintf("- **ID**: %s\n", r.ID))
	b.WriteString(fmt.Sprintf("- **Purpose**: %s\n", r.Purpose))
	b.WriteString(fmt.Sprintf("- **Status**: %s\n", r.Status))
	if !r.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("- **Updated**: %s\n", r.UpdatedAt.Format(time.RFC3339)))
	}
	if hash, err := r.Hash(); err == nil {
		b.WriteString(fmt.Sprintf("- **Tree hash**: %s\n", hash))
	}
	if r.Description != "" {
		b.WriteString(fmt.Sprintf("\n%s\n", r.Description))
	}

	b.WriteString("\n## Expression\n\n")
	writeNode(&b, r.Root, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n rules.Node, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(fmt.Sprintf("%s -> %s\n", n.Name(), n.ReturnType()))
	for _, c := range n.Children() {
		writeNode(b, c, depth+1)
	}
}

func num(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *p)
}

func nums(ps []*float64) string {
	if len(ps) == 0 {
		return "n/a"
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = num(p)
	}
	return strings.Join(parts, ", ")
}

func levels(ls []report.PriceLevel) string {
	if len(ls) == 0 {
		return "none"
	}
	parts := make([]string, len(ls))
	for i, l := range ls {
		parts[i] = fmt.Sprintf("%.2f (%s)", l.Level, l.Source)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]*float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
