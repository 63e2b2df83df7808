package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	searchPath = "/api/ratehawk/search"
	healthPath = "/api/health"

	// maxBodyBytes caps how much of an upstream response is buffered.
	maxBodyBytes = 32 << 20
)

// Config holds the upstream endpoint and retry policy.
type Config struct {
	BaseURL        string
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	WarmupTimeout  time.Duration
}

// DefaultConfig returns the production retry policy for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		MaxAttempts:    2,
		BaseDelay:      3 * time.Second,
		AttemptTimeout: 90 * time.Second,
		WarmupTimeout:  15 * time.Second,
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client talks to the upstream hotel-search backend.
type Client struct {
	cfg    Config
	client *http.Client
	sleep  SleepFunc
}

// NewClient constructs a Client with the given configuration.
func NewClient(cfg Config) *Client {
	return NewClientWithSleeper(cfg, sleepContext)
}

// NewClientWithSleeper constructs a Client whose backoff waits go through sleep (for tests).
func NewClientWithSleeper(cfg Config, sleep SleepFunc) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	// Per-call deadlines come from contexts; the client itself has no timeout.
	return &Client{cfg: cfg, client: &http.Client{}, sleep: sleep}
}

// Response is a fully buffered upstream HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Attempt records the outcome of one upstream call.
type Attempt struct {
	Number    int
	Status    int // 0 when no HTTP response was received
	Err       error
	Retryable bool
	Duration  time.Duration
}

// Result is the final outcome of Execute. Response is nil when every attempt
// failed before an HTTP response was received.
type Result struct {
	Response *Response
	Attempts []Attempt
}

// LastStatus returns the status of the final attempt, 0 if none responded.
func (r Result) LastStatus() int {
	if len(r.Attempts) == 0 {
		return 0
	}
	return r.Attempts[len(r.Attempts)-1].Status
}

// WarmupResult reports the outcome of a health probe.
type WarmupResult struct {
	OK     bool `json:"ok"`
	Status int  `json:"status"`
}

// Retryable reports whether an HTTP status warrants another attempt.
// 2xx and 4xx are terminal; everything else is treated as a server fault.
func Retryable(status int) bool {
	switch {
	case status >= 200 && status < 300:
		return false
	case status >= 400 && status < 500:
		return false
	default:
		return true
	}
}

// Warmup issues a health check against the upstream. Failures are reported in
// the result, never as an error.
func (c *Client) Warmup(ctx context.Context) WarmupResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WarmupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+healthPath, nil)
	if err != nil {
		return WarmupResult{}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return WarmupResult{}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	return WarmupResult{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
	}
}

// Execute posts body to the upstream search endpoint, retrying 5xx responses
// and transport failures with linear backoff (BaseDelay × attempt number).
func (c *Client) Execute(ctx context.Context, body []byte, requestID string) Result {
	var res Result

	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		resp, attempt := c.do(ctx, n, body, requestID)
		res.Attempts = append(res.Attempts, attempt)
		if resp != nil {
			res.Response = resp
		}

		if !attempt.Retryable || n == c.cfg.MaxAttempts {
			break
		}

		if err := c.sleep(ctx, c.cfg.BaseDelay*time.Duration(n)); err != nil {
			break
		}
	}

	return res
}

// do performs a single attempt bounded by AttemptTimeout.
func (c *Client) do(ctx context.Context, n int, body []byte, requestID string) (*Response, Attempt) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	attempt := Attempt{Number: n}
	fail := func(err error) (*Response, Attempt) {
		attempt.Err = err
		attempt.Retryable = true
		attempt.Duration = time.Since(start)
		return nil, attempt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		// A malformed base URL will not fix itself.
		attempt.Err = fmt.Errorf("creating search request: %w", err)
		attempt.Duration = time.Since(start)
		return nil, attempt
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("POST %s: %w", searchPath, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(fmt.Errorf("reading response from %s: %w", searchPath, err))
	}

	attempt.Status = resp.StatusCode
	attempt.Retryable = Retryable(resp.StatusCode)
	attempt.Duration = time.Since(start)

	return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: data}, attempt
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
