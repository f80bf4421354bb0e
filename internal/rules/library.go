package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/domain/semantic"
	"github.com/stockrun/stockrun/internal/errs"
)

// StoredRule is the persisted wire form of a rule: metadata columns plus the
// canonical tree JSON. Rebuilding the live tree needs a registry.
type StoredRule struct {
	ID          string
	Name        string
	Description string
	Purpose     semantic.Purpose
	Status      Status
	Root        json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store lists persisted rules. A zero-value purpose lists everything.
type Store interface {
	ListRules(ctx context.Context, purpose semantic.Purpose) ([]StoredRule, error)
}

// Library resolves executable rules against a registry, reading through a
// Store. When the store is nil or holds nothing for a purpose, the built-in
// seed set serves instead, so an empty database still yields advice.
type Library struct {
	reg   *Registry
	store Store

	mu     sync.RWMutex
	rules  map[semantic.Purpose][]*Rule
	seeded bool
}

// NewLibrary builds a library over reg. store may be nil for seed-only use.
func NewLibrary(reg *Registry, store Store) *Library {
	return &Library{
		reg:   reg,
		store: store,
		rules: make(map[semantic.Purpose][]*Rule),
	}
}

// Refresh reloads every purpose from the store, replacing the cached set.
// Store rules with DEPRECATED status load fine (they execute to neutral);
// rules that fail to rebuild are skipped with a warning rather than failing
// the whole refresh.
func (l *Library) Refresh(ctx context.Context) error {
	if l.store == nil {
		return l.seed()
	}

	stored, err := l.store.ListRules(ctx, "")
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if len(stored) == 0 {
		return l.seed()
	}

	fresh := make(map[semantic.Purpose][]*Rule)
	for _, sr := range stored {
		r, err := l.rebuild(sr)
		if err != nil {
			log.Warn().Err(err).Str("rule_id", sr.ID).Msg("Skipping unbuildable stored rule")
			continue
		}
		fresh[r.Purpose] = append(fresh[r.Purpose], r)
	}
	if len(fresh) == 0 {
		return l.seed()
	}

	l.mu.Lock()
	l.rules = fresh
	l.seeded = false
	l.mu.Unlock()
	return nil
}

func (l *Library) rebuild(sr StoredRule) (*Rule, error) {
	root, err := UnmarshalTree(sr.Root, l.reg)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		ID:          sr.ID,
		Name:        sr.Name,
		Description: sr.Description,
		Status:      sr.Status,
		Purpose:     sr.Purpose,
		CreatedAt:   sr.CreatedAt,
		UpdatedAt:   sr.UpdatedAt,
		Root:        root,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// seed installs the built-in rule set.
func (l *Library) seed() error {
	seeded, err := SeedRules(l.reg)
	if err != nil {
		return fmt.Errorf("seed rules: %w", err)
	}
	fresh := make(map[semantic.Purpose][]*Rule)
	for _, r := range seeded {
		fresh[r.Purpose] = append(fresh[r.Purpose], r)
	}
	l.mu.Lock()
	l.rules = fresh
	l.seeded = true
	l.mu.Unlock()
	log.Info().Int("rules", len(seeded)).Msg("Rule library seeded with built-in set")
	return nil
}

// ensure lazily loads on first use so construction stays cheap.
func (l *Library) ensure(ctx context.Context) error {
	l.mu.RLock()
	loaded := len(l.rules) > 0
	l.mu.RUnlock()
	if loaded {
		return nil
	}
	return l.Refresh(ctx)
}

// RulesByPurpose returns the executable rules of one purpose.
func (l *Library) RulesByPurpose(ctx context.Context, p semantic.Purpose) ([]*Rule, error) {
	if err := l.ensure(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Rule, len(l.rules[p]))
	copy(out, l.rules[p])
	return out, nil
}

// All returns every loaded rule across purposes, purpose order fixed.
func (l *Library) All(ctx context.Context) ([]*Rule, error) {
	if err := l.ensure(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Rule
	for _, p := range semantic.Purposes() {
		out = append(out, l.rules[p]...)
	}
	return out, nil
}

// Get finds one rule by ID.
func (l *Library) Get(ctx context.Context, id string) (*Rule, error) {
	if err := l.ensure(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, rs := range l.rules {
		for _, r := range rs {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return nil, errs.NoData("rule %s not found", id)
}

// Seeded reports whether the current set came from the built-in seeds.
func (l *Library) Seeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seeded
}

// ToStored converts a live rule into its persisted form.
func ToStored(r *Rule) (StoredRule, error) {
	raw, err := MarshalTree(r.Root)
	if err != nil {
		return StoredRule{}, err
	}
	return StoredRule{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Purpose:     r.Purpose,
		Status:      r.Status,
		Root:        raw,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
