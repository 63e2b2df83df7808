package upstream_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/travelapi-search/internal/upstream"
)

// recordingSleeper captures backoff waits without actually sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testConfig(baseURL string, attempts int) upstream.Config {
	return upstream.Config{
		BaseURL:        baseURL,
		MaxAttempts:    attempts,
		BaseDelay:      3 * time.Second,
		AttemptTimeout: time.Second,
		WarmupTimeout:  time.Second,
	}
}

func countingServer(t *testing.T, calls *int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// unreachableURL returns the URL of a server that has already been shut down.
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestExecute_SuccessSingleAttempt(t *testing.T) {
	var calls int32
	var gotBody, gotCT, gotReqID, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		gotReqID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"hotels":[]}`))
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(testConfig(srv.URL, 2), s.sleep)

	res := c.Execute(context.Background(), []byte(`{"destination":"Paris"}`), "req-1")

	require.NotNil(t, res.Response)
	assert.Equal(t, http.StatusOK, res.Response.Status)
	assert.JSONEq(t, `{"hotels":[]}`, string(res.Response.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, res.Attempts, 1)
	assert.Empty(t, s.waits)

	assert.Equal(t, "/api/ratehawk/search", gotPath)
	assert.Equal(t, `{"destination":"Paris"}`, gotBody)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "req-1", gotReqID)
}

func TestExecute_ClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := countingServer(t, &calls, http.StatusBadRequest, `{"error":"bad"}`)

	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(testConfig(srv.URL, 3), s.sleep)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	require.NotNil(t, res.Response)
	assert.Equal(t, http.StatusBadRequest, res.Response.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
	require.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Retryable)
	assert.Empty(t, s.waits)
}

func TestExecute_ServerErrorRetriedWithLinearBackoff(t *testing.T) {
	var calls int32
	srv := countingServer(t, &calls, http.StatusBadGateway, `upstream exploded`)

	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(testConfig(srv.URL, 3), s.sleep)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, s.waits)

	require.NotNil(t, res.Response, "final 5xx is returned as the outcome")
	assert.Equal(t, http.StatusBadGateway, res.Response.Status)
	assert.Equal(t, "upstream exploded", string(res.Response.Body))
	assert.Equal(t, http.StatusBadGateway, res.LastStatus())
}

func TestExecute_RecoversAfterServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"hotels":[{"id":"h1"}]}`))
	}))
	defer srv.Close()

	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(testConfig(srv.URL, 2), s.sleep)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	require.NotNil(t, res.Response)
	assert.Equal(t, http.StatusOK, res.Response.Status)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, []time.Duration{3 * time.Second}, s.waits)
}

func TestExecute_TransportFailureReturnsNoResponse(t *testing.T) {
	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(testConfig(unreachableURL(t), 2), s.sleep)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	assert.Nil(t, res.Response)
	require.Len(t, res.Attempts, 2)
	for _, a := range res.Attempts {
		assert.Equal(t, 0, a.Status)
		assert.Error(t, a.Err)
		assert.True(t, a.Retryable)
	}
	assert.Equal(t, []time.Duration{3 * time.Second}, s.waits)
	assert.Equal(t, 0, res.LastStatus())
}

func TestExecute_AttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 2)
	cfg.AttemptTimeout = 50 * time.Millisecond
	s := &recordingSleeper{}
	c := upstream.NewClientWithSleeper(cfg, s.sleep)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	assert.Nil(t, res.Response)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecute_CancelledDuringBackoffStops(t *testing.T) {
	var calls int32
	srv := countingServer(t, &calls, http.StatusInternalServerError, ``)

	cancelling := func(_ context.Context, _ time.Duration) error { return context.Canceled }
	c := upstream.NewClientWithSleeper(testConfig(srv.URL, 5), cancelling)

	res := c.Execute(context.Background(), []byte(`{}`), "")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, res.Attempts, 1)
	require.NotNil(t, res.Response)
	assert.Equal(t, http.StatusInternalServerError, res.Response.Status)
}

func TestNewClient_RealSleepHonoursContext(t *testing.T) {
	var calls int32
	srv := countingServer(t, &calls, http.StatusInternalServerError, ``)

	cfg := testConfig(srv.URL, 3)
	cfg.BaseDelay = time.Hour
	c := upstream.NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := c.Execute(ctx, []byte(`{}`), "")

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, res.Attempts, 1)
}

func TestRetryable(t *testing.T) {
	assert.False(t, upstream.Retryable(200))
	assert.False(t, upstream.Retryable(204))
	assert.False(t, upstream.Retryable(400))
	assert.False(t, upstream.Retryable(404))
	assert.False(t, upstream.Retryable(499))
	assert.True(t, upstream.Retryable(500))
	assert.True(t, upstream.Retryable(503))
	assert.True(t, upstream.Retryable(302))
}

func TestWarmup_OK(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := upstream.NewClient(testConfig(srv.URL+"/", 2))
	got := c.Warmup(context.Background())

	assert.Equal(t, upstream.WarmupResult{OK: true, Status: http.StatusOK}, got)
	assert.Equal(t, "/api/health", path)
}

func TestWarmup_UnhealthyStatus(t *testing.T) {
	var calls int32
	srv := countingServer(t, &calls, http.StatusServiceUnavailable, ``)

	c := upstream.NewClient(testConfig(srv.URL, 2))
	got := c.Warmup(context.Background())

	assert.Equal(t, upstream.WarmupResult{OK: false, Status: http.StatusServiceUnavailable}, got)
}

func TestWarmup_TimeoutIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, 2)
	cfg.WarmupTimeout = 50 * time.Millisecond
	c := upstream.NewClient(cfg)

	got := c.Warmup(context.Background())
	assert.Equal(t, upstream.WarmupResult{}, got)
}

func TestWarmup_Unreachable(t *testing.T) {
	c := upstream.NewClient(testConfig(unreachableURL(t), 2))
	assert.Equal(t, upstream.WarmupResult{}, c.Warmup(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := upstream.DefaultConfig("http://x")
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.BaseDelay)
	assert.Equal(t, 90*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 15*time.Second, cfg.WarmupTimeout)
}
