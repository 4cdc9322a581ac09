package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/throttlebench/internal/httpclient"
	"github.com/torosent/throttlebench/internal/metrics"
)

// DefaultRestartBackoff is the pause before a crashed virtual user is
// relaunched.
const DefaultRestartBackoff = 100 * time.Millisecond

// Executor performs one request and classifies it. Implementations must honor
// ctx and must not return until the request has completed or failed.
type Executor interface {
	Execute(ctx context.Context, req httpclient.Request) metrics.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req httpclient.Request) metrics.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, req httpclient.Request) metrics.Outcome {
	return f(ctx, req)
}

// ExecutorFactory prepares the executor for one execution unit. An error
// means the unit cannot start.
type ExecutorFactory func(unitID int) (Executor, error)

// Target is one request class in the traffic mix.
type Target struct {
	Class  metrics.Class
	URL    string
	Weight int
}

// Options configure the Pool.
type Options struct {
	Targets        []Target
	Concurrency    int           // virtual users across all units
	Duration       time.Duration // traffic window measured from the common start
	Timeout        time.Duration // per-request timeout, part of the hard drain limit
	DrainGrace     time.Duration // extra slack after duration+timeout before abandoning
	ThinkTimeMin   time.Duration
	ThinkTimeMax   time.Duration
	RampUp         time.Duration
	Units          int     // execution units; 0 uses GOMAXPROCS
	RatePerSecond  float64 // request cap across the run; 0 means unlimited
	MaxRestarts    int     // relaunches allowed per unit
	RestartBackoff time.Duration
	Seed           int64 // 0 picks a time-based seed
	NewExecutor    ExecutorFactory
	NewUserID      func() string
	Logger         *zap.Logger
	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Units <= 0 {
		o.Units = runtime.GOMAXPROCS(0)
	}
	if o.Units > o.Concurrency {
		o.Units = o.Concurrency
	}
	if o.DrainGrace < 0 {
		o.DrainGrace = 0
	}
	if o.ThinkTimeMax < o.ThinkTimeMin {
		o.ThinkTimeMax = o.ThinkTimeMin
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = DefaultRestartBackoff
	}
	if o.MaxRestarts < 0 {
		o.MaxRestarts = 0
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.NewUserID == nil {
		o.NewUserID = uuid.NewString
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = newUnitLimiter
	}
}

func (o Options) validate() error {
	var issues []string
	if o.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if o.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if o.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if o.ThinkTimeMin < 0 {
		issues = append(issues, "think time must be >= 0")
	}
	if o.RampUp < 0 {
		issues = append(issues, "ramp-up must be >= 0")
	}
	if o.RatePerSecond < 0 || math.IsNaN(o.RatePerSecond) {
		issues = append(issues, "rate must be >= 0")
	}
	if o.NewExecutor == nil {
		issues = append(issues, "executor factory is required")
	}
	weight := 0
	for _, t := range o.Targets {
		if t.Weight < 0 {
			issues = append(issues, fmt.Sprintf("target %s has negative weight", t.Class))
		}
		if t.Weight > 0 && strings.TrimSpace(t.URL) == "" {
			issues = append(issues, fmt.Sprintf("target %s has no URL", t.Class))
		}
		weight += t.Weight
	}
	if weight == 0 {
		issues = append(issues, "at least one target with positive weight is required")
	}
	if len(issues) > 0 {
		return errors.New("runner: invalid options: " + strings.Join(issues, "; "))
	}
	return nil
}

// newUnitLimiter paces one unit's share of the run's request cap. A burst of
// one keeps the cap tight at the start of the run.
func newUnitLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
