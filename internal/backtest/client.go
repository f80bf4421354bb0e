package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/stockrun/stockrun/internal/errs"
)

// JobStatus is the upstream job lifecycle as reported by the provider.
type JobStatus string

const (
	StatusIdle      JobStatus = "IDLE"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// JobRef identifies a submitted job.
type JobRef struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// Client drives the historical-report job provider.
type Client interface {
	Generate(ctx context.Context, ticker string, timestamps []int64) (JobRef, error)
	Check(ctx context.Context, jobID string) (JobStatus, error)
}

// HTTPClientConfig tunes the provider client.
type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient is the JSON-over-HTTP provider client. Requests carry a 30s
// timeout and run through a circuit breaker; every failure surfaces as
// BACKTEST_UPSTREAM so the polling loop can decide whether to keep going.
type HTTPClient struct {
	cfg     HTTPClientConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPClient builds a provider client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{Name: "backtest-provider"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 }
	st.Timeout = 30 * time.Second
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("Backtest provider breaker state changed")
	}

	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

type generateRequest struct {
	Ticker     string  `json:"ticker"`
	Timestamps []int64 `json:"timestamps"`
}

// Generate submits one job for the ticker. A 409 from the provider means a
// job is already running there; that surfaces as ErrJobRunning, the same
// signal the in-process service emits, so handlers map the conflict to 409
// regardless of which client backs the manager.
func (c *HTTPClient) Generate(ctx context.Context, ticker string, timestamps []int64) (JobRef, error) {
	payload, err := json.Marshal(generateRequest{Ticker: ticker, Timestamps: timestamps})
	if err != nil {
		return JobRef{}, errs.BacktestUpstream(err)
	}

	var ref JobRef
	err = c.do(ctx, http.MethodPost, "/backtest/generate", payload, &ref)
	if err != nil {
		return JobRef{}, err
	}
	if ref.JobID == "" {
		return JobRef{}, errs.BacktestUpstream(fmt.Errorf("provider returned no job_id"))
	}
	return ref, nil
}

// Check reads the current status of a job.
func (c *HTTPClient) Check(ctx context.Context, jobID string) (JobStatus, error) {
	var ref JobRef
	if err := c.do(ctx, http.MethodGet, "/backtest/check/"+jobID, nil, &ref); err != nil {
		return "", err
	}
	switch ref.Status {
	case StatusIdle, StatusRunning, StatusCompleted, StatusFailed:
		return ref.Status, nil
	default:
		return "", errs.BacktestUpstream(fmt.Errorf("provider returned unknown status %q", ref.Status))
	}
}

// LocalClient satisfies Client against the in-process job Service, so the
// manager runs the same submit/poll loop whether or not an external provider
// is deployed.
type LocalClient struct {
	svc *Service
}

// NewLocalClient wraps the in-process job service.
func NewLocalClient(svc *Service) *LocalClient {
	return &LocalClient{svc: svc}
}

// Generate submits one job to the local service.
func (c *LocalClient) Generate(ctx context.Context, ticker string, timestamps []int64) (JobRef, error) {
	job, err := c.svc.Submit(ticker, timestamps)
	if err != nil {
		return JobRef{}, err
	}
	return JobRef{JobID: job.ID, Status: job.Status}, nil
}

// Check reads the current status of a local job.
func (c *LocalClient) Check(ctx context.Context, jobID string) (JobStatus, error) {
	job, ok := c.svc.Job(jobID)
	if !ok {
		return "", errs.BacktestUpstream(fmt.Errorf("unknown job %s", jobID))
	}
	return job.Status, nil
}

type providerResponse struct {
	status int
	body   []byte
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	res, err := c.breaker.Execute(func() (interface{}, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		// A conflict is an application-level answer, not a provider fault;
		// it must not count toward tripping the breaker.
		if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return providerResponse{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		return errs.BacktestUpstream(err)
	}

	pr := res.(providerResponse)
	if pr.status == http.StatusConflict {
		return ErrJobRunning
	}
	if err := json.Unmarshal(pr.body, out); err != nil {
		return errs.BacktestUpstream(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
