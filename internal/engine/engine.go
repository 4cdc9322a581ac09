// Package engine wires one benchmark run together: health check, resource
// sampler, worker pool and aggregation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/httpclient"
	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/runner"
	"github.com/torosent/throttlebench/internal/sampler"
)

// ErrTargetUnhealthy is returned when the pre-run health check fails.
var ErrTargetUnhealthy = errors.New("engine: target is unhealthy")

// Result is everything a finished run produced.
type Result struct {
	RunID      string
	Label      string
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       int64
	Report     metrics.Report
	Resources  sampler.Summary
	Snapshots  []sampler.Snapshot
	Restarts   []runner.RestartEvent
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer enables one client span per request.
func WithTracer(t trace.Tracer, propagate bool) Option {
	return func(e *Engine) {
		e.tracer = t
		e.propagate = propagate
	}
}

// WithExecutorFactory replaces the HTTP executor, mainly for tests.
func WithExecutorFactory(f runner.ExecutorFactory) Option {
	return func(e *Engine) { e.factory = f }
}

// WithUsageReader replaces the process usage source of the sampler.
func WithUsageReader(r sampler.Reader) Option {
	return func(e *Engine) { e.reader = r }
}

// WithHTTPClient sets the client used for the health check and requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		if c != nil {
			e.client = c
		}
	}
}

// Engine runs one benchmark described by a validated configuration.
type Engine struct {
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
	propagate bool
	factory   runner.ExecutorFactory
	reader    sampler.Reader
	client    *http.Client

	pool  atomic.Pointer[runner.Pool]
	usage atomic.Pointer[sampler.Sampler]
}

// New validates cfg and prepares an engine.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = httpclient.NewClient(cfg.Timeout, cfg.Concurrency)
	}
	if e.factory == nil {
		e.factory = e.httpExecutors
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e, nil
}

// Run executes the benchmark. Fatal problems (unhealthy target, no unit
// started) are returned as errors; request failures only show up in the
// report.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	cfg := e.cfg
	runID := ulid.Make().String()
	logger := e.logger.With(zap.String("run_id", runID), zap.String("label", cfg.Label))

	if !cfg.SkipHealthCheck {
		urls := e.healthURLs()
		logger.Info("checking target health", zap.Strings("urls", urls))
		if err := httpclient.CheckHealth(ctx, e.client, urls, cfg.HealthTimeout); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrTargetUnhealthy, err)
		}
	}

	pool, err := runner.NewPool(runner.Options{
		Targets:       e.targets(),
		Concurrency:   cfg.Concurrency,
		Duration:      cfg.Duration,
		Timeout:       cfg.Timeout,
		DrainGrace:    cfg.DrainGrace,
		ThinkTimeMin:  cfg.ThinkTimeMin,
		ThinkTimeMax:  cfg.ThinkTimeMax,
		RampUp:        cfg.RampUp,
		Units:         cfg.Workers,
		RatePerSecond: cfg.Rate,
		MaxRestarts:   cfg.MaxRestarts,
		Seed:          cfg.Seed,
		NewExecutor:   e.factory,
		Logger:        logger,
	})
	if err != nil {
		return Result{}, err
	}
	e.pool.Store(pool)

	s := sampler.New(sampler.Options{
		Interval: cfg.SampleInterval,
		Reader:   e.reader,
		Logger:   logger.With(zap.String("component", "sampler")),
	})
	e.usage.Store(s)
	s.Start()
	run, err := pool.Run(ctx)
	s.Stop()
	if err != nil {
		return Result{}, fmt.Errorf("run %s: %w", runID, err)
	}

	report := metrics.Aggregate(run)
	resources := s.Summary()
	logger.Info("run complete",
		zap.Int64("requests", report.Counts.Total),
		zap.Float64("rps", report.RequestsPerSec),
		zap.Float64("rate_limited_pct", report.RateLimitedRate),
		zap.Duration("p99", report.Latency.P99),
		zap.Int("restarts", report.Restarts),
		zap.Int("samples", resources.Samples),
	)

	return Result{
		RunID:      runID,
		Label:      cfg.Label,
		StartedAt:  run.Start,
		FinishedAt: run.End,
		Seed:       pool.Seed(),
		Report:     report,
		Resources:  resources,
		Snapshots:  s.Snapshots(),
		Restarts:   pool.Restarts(),
	}, nil
}

// Progress returns the live view of the current run, or the zero value
// before traffic starts.
func (e *Engine) Progress() metrics.Progress {
	pool := e.pool.Load()
	if pool == nil {
		return metrics.Progress{}
	}
	return pool.Progress()
}

// Resources returns the latest process snapshot of the current run.
func (e *Engine) Resources() (sampler.Snapshot, bool) {
	s := e.usage.Load()
	if s == nil {
		return sampler.Snapshot{}, false
	}
	return s.Latest()
}

func (e *Engine) targets() []runner.Target {
	light, heavy := e.cfg.Mix()
	var targets []runner.Target
	if light > 0 {
		targets = append(targets, runner.Target{Class: metrics.ClassLight, URL: strings.TrimSpace(e.cfg.LightURL), Weight: light})
	}
	if heavy > 0 {
		targets = append(targets, runner.Target{Class: metrics.ClassHeavy, URL: strings.TrimSpace(e.cfg.HeavyURL), Weight: heavy})
	}
	return targets
}

func (e *Engine) healthURLs() []string {
	if u := strings.TrimSpace(e.cfg.HealthURL); u != "" {
		return []string{u}
	}
	urls := make([]string, 0, 2)
	for _, t := range e.targets() {
		urls = append(urls, t.URL)
	}
	return urls
}

// httpExecutors builds one HTTP executor per unit over the shared client.
func (e *Engine) httpExecutors(unitID int) (runner.Executor, error) {
	exec, err := httpclient.NewExecutor(e.client, httpclient.ExecutorOptions{
		Method:         e.cfg.Method,
		Headers:        e.cfg.Headers,
		UserHeader:     e.cfg.UserHeader,
		UserQueryParam: e.cfg.UserQueryParam,
		Tracer:         e.tracer,
		Propagate:      e.propagate,
		Logger:         e.logger.With(zap.Int("unit", unitID)),
		LogFailures:    e.cfg.LogErrors,
	})
	if err != nil {
		return nil, fmt.Errorf("unit %d: %w", unitID, err)
	}
	return exec, nil
}
