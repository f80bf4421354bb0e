package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Metadata is the ticker → sector map. It is built once at construction and
// immutable afterwards, so lookups need no locking.
type Metadata struct {
	sectors map[string]string
	tickers []string
}

// LoadMetadata reads the universe from the store. Tickers are upper-cased;
// an empty universe is an error because nothing downstream could serve.
func LoadMetadata(ctx context.Context, store SectorStore) (*Metadata, error) {
	raw, err := store.TickerSectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ticker metadata: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("ticker metadata is empty")
	}

	sectors := make(map[string]string, len(raw))
	tickers := make([]string, 0, len(raw))
	for t, s := range raw {
		up := strings.ToUpper(strings.TrimSpace(t))
		if up == "" {
			continue
		}
		sectors[up] = s
		tickers = append(tickers, up)
	}
	sort.Strings(tickers)

	return &Metadata{sectors: sectors, tickers: tickers}, nil
}

// Sector resolves a ticker's sector; ok is false for unknown tickers.
func (m *Metadata) Sector(ticker string) (string, bool) {
	s, ok := m.sectors[strings.ToUpper(ticker)]
	return s, ok
}

// Known reports whether the ticker is part of the universe.
func (m *Metadata) Known(ticker string) bool {
	_, ok := m.sectors[strings.ToUpper(ticker)]
	return ok
}

// Tickers returns the sorted universe.
func (m *Metadata) Tickers() []string {
	return append([]string(nil), m.tickers...)
}

// Sectors returns the distinct sectors, sorted.
func (m *Metadata) Sectors() []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range m.sectors {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Metadata) Len() int { return len(m.sectors) }
