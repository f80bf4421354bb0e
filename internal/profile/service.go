// Package profile resolves per-user advisory preferences: which rules may
// contribute and how the purpose aggregates are weighted.
package profile

import (
	"context"
	"strings"
	"sync"

	"github.com/stockrun/stockrun/internal/advisor"
	"github.com/stockrun/stockrun/internal/rules"
)

// Risk appetites a profile can declare.
const (
	AppetiteConservative = "conservative"
	AppetiteBalanced     = "balanced"
	AppetiteAggressive   = "aggressive"
)

// Profile is one user's advisory configuration.
type Profile struct {
	UserID   string          `json:"user_id" yaml:"user_id"`
	Appetite string          `json:"appetite" yaml:"appetite"`
	Weights  advisor.Weights `json:"weights" yaml:"weights"`
}

// Selector decides whether a rule may contribute for this profile.
type Selector func(r *rules.Rule) bool

// Service resolves profiles and derives their rule selector and weights.
type Service interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	RuleSelector(p Profile) Selector
	MetaWeights(p Profile) advisor.Weights
}

// StaticService serves profiles from an in-memory table with a default for
// unknown users. Upserts are rare; the table is guarded by one mutex.
type StaticService struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	fallback Profile
}

// NewStaticService builds a service with the given known profiles. The
// fallback applies to every user not in the table.
func NewStaticService(known []Profile, fallback Profile) *StaticService {
	if fallback.Appetite == "" {
		fallback.Appetite = AppetiteBalanced
	}
	m := make(map[string]Profile, len(known))
	for _, p := range known {
		if p.UserID == "" {
			continue
		}
		if p.Appetite == "" {
			p.Appetite = fallback.Appetite
		}
		m[p.UserID] = p
	}
	return &StaticService{profiles: m, fallback: fallback}
}

// GetProfile resolves userID, falling back to the default profile with the
// requested id stamped in.
func (s *StaticService) GetProfile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	p := s.fallback
	p.UserID = userID
	return p, nil
}

// Upsert stores or replaces a profile.
func (s *StaticService) Upsert(p Profile) {
	if p.UserID == "" {
		return
	}
	s.mu.Lock()
	s.profiles[p.UserID] = p
	s.mu.Unlock()
}

// RuleSelector maps the appetite to a rule predicate: conservative and
// balanced users only run battle-tested rules, aggressive users also accept
// rules still evolving. Deprecated rules never contribute.
func (s *StaticService) RuleSelector(p Profile) Selector {
	aggressive := strings.EqualFold(p.Appetite, AppetiteAggressive)
	return func(r *rules.Rule) bool {
		switch r.Status {
		case rules.StatusReady:
			return true
		case rules.StatusEvolving:
			return aggressive
		default:
			return false
		}
	}
}

// MetaWeights resolves the synthesis weights: explicit profile weights win,
// even when set to zero, otherwise the appetite shapes them.
func (s *StaticService) MetaWeights(p Profile) advisor.Weights {
	if p.Weights != (advisor.Weights{}) {
		return p.Weights
	}
	switch strings.ToLower(p.Appetite) {
	case AppetiteConservative:
		return advisor.NewWeights(1, 1.25, 0.75)
	case AppetiteAggressive:
		return advisor.NewWeights(1, 0.75, 1.25)
	default:
		return advisor.NewWeights(1, 1, 1)
	}
}
