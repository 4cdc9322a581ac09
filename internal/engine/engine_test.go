package engine_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/engine"
	"github.com/torosent/throttlebench/internal/runner"
	"github.com/torosent/throttlebench/internal/sampler"
)

func testConfig(lightURL string) config.Config {
	cfg := *config.Defaults()
	cfg.LightURL = lightURL
	cfg.Concurrency = 4
	cfg.Workers = 2
	cfg.Duration = 300 * time.Millisecond
	cfg.Timeout = time.Second
	cfg.ThinkTimeMin = 5 * time.Millisecond
	cfg.ThinkTimeMax = 10 * time.Millisecond
	cfg.SampleInterval = 50 * time.Millisecond
	cfg.DrainGrace = 100 * time.Millisecond
	cfg.Seed = 7
	return cfg
}

type fixedUsage struct{ calls atomic.Int64 }

func (f *fixedUsage) Read() (sampler.Usage, error) {
	n := f.calls.Add(1)
	return sampler.Usage{
		User:      time.Duration(n) * 10 * time.Millisecond,
		RSSBytes:  64 << 20,
		HeapBytes: 8 << 20,
	}, nil
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAgainstHealthyTarget(t *testing.T) {
	srv := statusServer(t, http.StatusOK)

	e, err := engine.New(testConfig(srv.URL),
		engine.WithLogger(zaptest.NewLogger(t)),
		engine.WithUsageReader(&fixedUsage{}),
	)
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	_, err = ulid.Parse(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "run", result.Label)
	assert.EqualValues(t, 7, result.Seed)
	assert.True(t, result.FinishedAt.After(result.StartedAt))

	r := result.Report
	require.Positive(t, r.Counts.Total)
	assert.Equal(t, r.Counts.Total, r.Counts.Success)
	assert.InDelta(t, 100.0, r.SuccessRate, 1e-9)
	assert.Less(t, r.Latency.P99, 50*time.Millisecond)
	assert.Equal(t, 4, r.ActiveVUs)
	assert.Len(t, r.Units, 2)

	assert.Positive(t, result.Resources.Samples)
	assert.NotEmpty(t, result.Snapshots)
	assert.EqualValues(t, 64<<20, result.Resources.Memory.Max)
}

func TestRunAgainstRateLimitingTarget(t *testing.T) {
	srv := statusServer(t, http.StatusTooManyRequests)

	e, err := engine.New(testConfig(srv.URL), engine.WithUsageReader(&fixedUsage{}))
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	r := result.Report
	require.Positive(t, r.Counts.Total)
	assert.Equal(t, r.Counts.Total, r.Counts.RateLimited)
	assert.InDelta(t, 100.0, r.RateLimitedRate, 1e-9)
	assert.Zero(t, r.SuccessRate)
	assert.EqualValues(t, r.Counts.Total, r.StatusCodes[http.StatusTooManyRequests])
}

func TestRunMixedClasses(t *testing.T) {
	var light, heavy atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/light", func(w http.ResponseWriter, r *http.Request) { light.Add(1) })
	mux.HandleFunc("/heavy", func(w http.ResponseWriter, r *http.Request) {
		heavy.Add(1)
		time.Sleep(2 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL + "/light")
	cfg.HeavyURL = srv.URL + "/heavy"
	cfg.LightRatio = 50
	cfg.SkipHealthCheck = true

	e, err := engine.New(cfg, engine.WithUsageReader(&fixedUsage{}))
	require.NoError(t, err)
	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, light.Load())
	assert.Positive(t, heavy.Load())
	assert.Equal(t, light.Load(), result.Report.Classes["light"].Counts.Total)
	assert.Equal(t, heavy.Load(), result.Report.Classes["heavy"].Counts.Total)
}

func TestRunFailsOnUnhealthyTarget(t *testing.T) {
	srv := statusServer(t, http.StatusServiceUnavailable)

	e, err := engine.New(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrTargetUnhealthy)
}

func TestRunUsesHealthURL(t *testing.T) {
	target := statusServer(t, http.StatusOK)
	health := statusServer(t, http.StatusInternalServerError)

	cfg := testConfig(target.URL)
	cfg.HealthURL = health.URL
	e, err := engine.New(cfg)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrTargetUnhealthy)

	cfg.SkipHealthCheck = true
	e, err = engine.New(cfg, engine.WithUsageReader(&fixedUsage{}))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)
}

func TestRunWithoutUnits(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	e, err := engine.New(testConfig(srv.URL),
		engine.WithExecutorFactory(func(int) (runner.Executor, error) {
			return nil, errors.New("no executor")
		}),
	)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, runner.ErrNoUnits)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	_, err := engine.New(cfg)

	var verr config.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProgress(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	cfg := testConfig(srv.URL)
	cfg.Duration = 500 * time.Millisecond

	e, err := engine.New(cfg, engine.WithUsageReader(&fixedUsage{}))
	require.NoError(t, err)
	assert.Zero(t, e.Progress().Total)

	done := make(chan engine.Result, 1)
	go func() {
		result, _ := e.Run(context.Background())
		done <- result
	}()

	_, ok := e.Resources()
	assert.False(t, ok)

	require.Eventually(t, func() bool { return e.Progress().Total > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := e.Resources()
		return ok
	}, 2*time.Second, 10*time.Millisecond, "live resource snapshot")
	snap, _ := e.Resources()
	assert.EqualValues(t, 64<<20, snap.RSSBytes)

	result := <-done
	assert.Equal(t, result.Report.Counts.Total, e.Progress().Total)
}
