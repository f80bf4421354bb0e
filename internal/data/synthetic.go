package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
)

// SyntheticPrices is a deterministic offline PriceStore: each ticker gets a
// seeded random walk, so repeated runs and tests see identical frames. Daily
// bars cover weekdays only and close at 21:00 UTC.
type SyntheticPrices struct {
	Days       int
	Intraday   int
	Volatility float64
	// End pins the final bar day; zero means today. Tests set it.
	End time.Time
}

// NewSyntheticPrices returns a store with enough daily history for 200-bar
// moving averages plus a year of evaluation room.
func NewSyntheticPrices() *SyntheticPrices {
	return &SyntheticPrices{Days: 420, Intraday: 78, Volatility: 0.02}
}

func (s *SyntheticPrices) DailyOHLCV(_ context.Context, ticker string) (Frame, error) {
	ticker = strings.ToUpper(ticker)
	end := s.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	end = time.Date(end.Year(), end.Month(), end.Day(), 21, 0, 0, 0, time.UTC)

	days := make([]time.Time, 0, s.Days)
	for d := end; len(days) < s.Days; d = d.AddDate(0, 0, -1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}

	rng := rand.New(rand.NewSource(seedOf(ticker)))
	price := 40 + rng.Float64()*360
	drift := (rng.Float64() - 0.45) * 0.002
	baseVol := 1e6 * (0.5 + 4*rng.Float64())

	bars := make([]Bar, len(days))
	for i, day := range days {
		ret := drift + s.Volatility*rng.NormFloat64()
		open := price
		close := price * (1 + ret)
		spread := math.Abs(rng.NormFloat64()) * s.Volatility * price * 0.5
		high := math.Max(open, close) + spread
		low := math.Min(open, close) - spread
		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}
		bars[i] = Bar{
			TS:     day.Unix(),
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(close),
			Volume: math.Round(baseVol * (0.6 + 0.8*rng.Float64())),
		}
		price = close
	}
	return Frame{Ticker: ticker, Bars: bars}, nil
}

func (s *SyntheticPrices) IntradayOHLCV(_ context.Context, ticker string) (Frame, error) {
	ticker = strings.ToUpper(ticker)
	end := s.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	// 5-minute bars from the 14:30 UTC open of the final day.
	open := time.Date(end.Year(), end.Month(), end.Day(), 14, 30, 0, 0, time.UTC)
	for wd := open.Weekday(); wd == time.Saturday || wd == time.Sunday; wd = open.Weekday() {
		open = open.AddDate(0, 0, -1)
	}

	rng := rand.New(rand.NewSource(seedOf(ticker + ":intraday")))
	price := 40 + rng.Float64()*360
	step := s.Volatility / math.Sqrt(float64(s.Intraday))
	baseVol := 1e4 * (0.5 + 4*rng.Float64())

	bars := make([]Bar, s.Intraday)
	for i := range bars {
		ret := step * rng.NormFloat64()
		o := price
		c := price * (1 + ret)
		spread := math.Abs(rng.NormFloat64()) * step * price * 0.5
		bars[i] = Bar{
			TS:     open.Add(time.Duration(i+1) * 5 * time.Minute).Unix(),
			Open:   round2(o),
			High:   round2(math.Max(o, c) + spread),
			Low:    round2(math.Min(o, c) - spread),
			Close:  round2(c),
			Volume: math.Round(baseVol * (0.6 + 0.8*rng.Float64())),
		}
		price = c
	}
	return Frame{Ticker: ticker, Bars: bars}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func seedOf(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// SyntheticNews fabricates a small recent article set per ticker from a
// fixed template pool. Titles and bodies carry the sentiment and impact
// keywords the news lexicons score on.
type SyntheticNews struct {
	// Now pins article recency; zero means time.Now.
	Now time.Time
}

var newsTemplates = []struct{ title, body string }{
	{"%s beats quarterly earnings estimates", "%s reported record revenue growth and raised full-year guidance. Analysts called the beat bullish for the stock."},
	{"%s announces share buyback program", "The board approved a new buyback, signaling confidence and upside for %s shareholders."},
	{"Analysts upgrade %s on momentum", "Two brokerages raised their rating on %s, citing strong momentum and improving margins."},
	{"%s expands into new markets", "A partnership deal positions %s for growth in a fast-expanding market."},
	{"%s unveils next product generation", "%s introduced its new lineup to a mixed initial reception from reviewers."},
	{"%s misses on revenue, cuts outlook", "%s posted weaker-than-expected sales and lowered guidance. The miss raises downside concern among investors."},
	{"%s faces regulatory probe", "Regulators opened an investigation into %s business practices. The lawsuit risk could weigh on shares."},
	{"Supply chain disruption hits %s", "%s warned of delays and higher costs amid the disruption, a bearish signal for near-term margins."},
}

func (s *SyntheticNews) RecentArticles(_ context.Context, ticker string, limit int) ([]NewsItem, error) {
	ticker = strings.ToUpper(ticker)
	now := s.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if limit <= 0 || limit > len(newsTemplates) {
		limit = 5
	}

	rng := rand.New(rand.NewSource(seedOf(ticker + ":news")))
	order := rng.Perm(len(newsTemplates))

	items := make([]NewsItem, limit)
	for i := 0; i < limit; i++ {
		tpl := newsTemplates[order[i]]
		items[i] = NewsItem{
			ID:          fmt.Sprintf("%s-news-%d", strings.ToLower(ticker), i+1),
			Ticker:      ticker,
			Title:       fmt.Sprintf(tpl.title, ticker),
			Body:        fmt.Sprintf(tpl.body, ticker),
			PublishedAt: now.Add(-time.Duration(i*7) * time.Hour),
		}
	}
	return items, nil
}

// SyntheticUniverse is a fixed offline ticker universe.
type SyntheticUniverse struct {
	Assignments map[string]string
}

// DefaultUniverse covers a handful of liquid names across five sectors.
func DefaultUniverse() map[string]string {
	return map[string]string{
		"AAPL": "technology",
		"MSFT": "technology",
		"NVDA": "technology",
		"GOOG": "technology",
		"JPM":  "financials",
		"GS":   "financials",
		"BAC":  "financials",
		"XOM":  "energy",
		"CVX":  "energy",
		"JNJ":  "healthcare",
		"PFE":  "healthcare",
		"AMZN": "consumer",
		"TSLA": "consumer",
		"WMT":  "consumer",
	}
}

func (u *SyntheticUniverse) TickerSectors(_ context.Context) (map[string]string, error) {
	if len(u.Assignments) == 0 {
		return DefaultUniverse(), nil
	}
	return u.Assignments, nil
}
