package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ArtifactStore fetches serialized model artifacts by slug.
type ArtifactStore interface {
	FetchArtifact(ctx context.Context, slug string) ([]byte, error)
	SnapshotKernelSource
}

// HTTPStoreConfig tunes the remote store client.
type HTTPStoreConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RatePerSec     float64
	Burst          int

	// Breaker knobs; zero values fall back to the package defaults.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// HTTPStore talks to the external artifact service. Calls are rate limited,
// retried with exponential backoff on transient failures, and cut off by a
// circuit breaker when the service is down.
type HTTPStore struct {
	cfg     HTTPStoreConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPStore builds a store client, filling zero config fields with
// conservative defaults.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	st := gobreaker.Settings{Name: "artifact-store"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 }
	st.MaxRequests = cfg.BreakerMaxRequests
	st.Interval = cfg.BreakerInterval
	st.Timeout = cfg.BreakerTimeout
	if st.Timeout <= 0 {
		st.Timeout = 30 * time.Second
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("Artifact store breaker state changed")
	}

	return &HTTPStore{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (s *HTTPStore) FetchArtifact(ctx context.Context, slug string) ([]byte, error) {
	return s.fetch(ctx, fmt.Sprintf("%s/models/%s", strings.TrimRight(s.cfg.BaseURL, "/"), slug))
}

func (s *HTTPStore) FetchSnapshotKernel(ctx context.Context, slug, snapshotID string) ([]byte, error) {
	return s.fetch(ctx, fmt.Sprintf("%s/models/%s/snapshots/%s", strings.TrimRight(s.cfg.BaseURL, "/"), slug, snapshotID))
}

func (s *HTTPStore) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.backoff(attempt)
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", url).
				Msg("Retrying artifact fetch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := s.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (s *HTTPStore) attempt(ctx context.Context, url string) ([]byte, error) {
	body, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return nil, &statusError{code: resp.StatusCode, url: url}
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (s *HTTPStore) backoff(attempt int) time.Duration {
	backoff := s.cfg.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > s.cfg.BackoffMax {
		backoff = s.cfg.BackoffMax
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d from %s", e.code, e.url) }

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Remaining errors are transport-level and worth another try.
	return true
}

// FileStore reads artifacts from a local directory: one {slug}.json per
// model, snapshot kernels under {slug}/{snapshot_id}.json.
type FileStore struct {
	Dir string
}

func (s *FileStore) FetchArtifact(_ context.Context, slug string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, slug+".json"))
}

func (s *FileStore) FetchSnapshotKernel(_ context.Context, slug, snapshotID string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Dir, slug, snapshotID+".json"))
}

// SyntheticStore fabricates deterministic linear artifacts so the service
// runs end to end without an artifact service behind it. The same slug
// always produces the same weights, which keeps offline runs reproducible.
type SyntheticStore struct {
	Features      []string
	SnapshotTimes []int64
}

// NewSyntheticStore builds a synthetic store over the given feature list.
// Every fabricated handle carries one snapshot per entry of snapshotTimes.
func NewSyntheticStore(features []string, snapshotTimes []int64) *SyntheticStore {
	return &SyntheticStore{Features: features, SnapshotTimes: snapshotTimes}
}

func (s *SyntheticStore) FetchArtifact(_ context.Context, slug string) ([]byte, error) {
	targets, softmax := syntheticLayout(slug)
	raw, err := json.Marshal(s.buildKernel(slug, targets, softmax))
	if err != nil {
		return nil, err
	}

	snaps := make([]snapshotEntry, len(s.SnapshotTimes))
	for i, ts := range s.SnapshotTimes {
		snaps[i] = snapshotEntry{ID: fmt.Sprintf("snap-%03d", i+1), AvailableFrom: ts}
	}

	return json.Marshal(artifactBundle{
		TaskID:         slug,
		Framework:      "linear",
		Variation:      "synthetic",
		Kernel:         raw,
		Snapshots:      snaps,
		PostProcessors: syntheticProcessors(targets),
	})
}

func (s *SyntheticStore) FetchSnapshotKernel(_ context.Context, slug, snapshotID string) ([]byte, error) {
	targets, softmax := syntheticLayout(slug)
	return json.Marshal(s.buildKernel(slug+"/"+snapshotID, targets, softmax))
}

func (s *SyntheticStore) buildKernel(seedKey string, targets []string, softmax bool) *LinearKernel {
	rng := rand.New(rand.NewSource(seedFor(seedKey)))

	means := make([]float64, len(s.Features))
	for i := range means {
		means[i] = rng.NormFloat64() * 0.5
	}
	weights := make([][]float64, len(targets))
	intercepts := make([]float64, len(targets))
	for t := range targets {
		row := make([]float64, len(s.Features))
		for j := range row {
			row[j] = rng.NormFloat64() * 0.3
		}
		weights[t] = row
		intercepts[t] = rng.NormFloat64() * 0.1
	}

	return &LinearKernel{
		TargetNames:  append([]string(nil), targets...),
		FeatureNames: append([]string(nil), s.Features...),
		Weights:      weights,
		Intercepts:   intercepts,
		FeatureMeans: means,
		Softmax:      softmax,
	}
}

// syntheticLayout infers the target layout from the slug's problem prefix.
func syntheticLayout(slug string) (targets []string, softmax bool) {
	if strings.HasPrefix(slug, "tb_") {
		return []string{"p_down", "p_flat", "p_up"}, true
	}
	return []string{"mean", "std", "min", "max", "q25", "q75"}, false
}

func syntheticProcessors(targets []string) []ProcessorSpec {
	specs := []ProcessorSpec{}
	if len(targets) == 6 {
		specs = append(specs, ProcessorSpec{Name: "distribution_constraints"})
	}
	specs = append(specs, ProcessorSpec{Name: "round", Params: map[string]float64{"digits": 4}})
	return specs
}

func seedFor(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
