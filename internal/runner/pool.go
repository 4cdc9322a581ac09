package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/torosent/throttlebench/internal/metrics"
)

// ErrNoUnits is returned when every execution unit failed to start.
var ErrNoUnits = errors.New("runner: no execution unit could be started")

// RestartEvent records one relaunch of a crashed virtual user.
type RestartEvent struct {
	UnitID int
	VU     int
	Err    error
	At     time.Time
}

// schedule is shared by every unit of a run. It is written once before the
// release barrier opens and read-only afterwards.
type schedule struct {
	release  chan struct{}
	start    time.Time
	deadline time.Time
	stop     context.Context // fires at start+duration or on external cancel
	hard     context.Context // bounds in-flight requests after stop
}

// Pool spreads virtual users over execution units and drives one run.
type Pool struct {
	opt    Options
	logger *zap.Logger

	mu       sync.Mutex
	units    []*unit
	start    time.Time
	restarts []RestartEvent
	running  bool
}

// NewPool validates the options and prepares a pool.
func NewPool(opt Options) (*Pool, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	opt.normalize()
	return &Pool{
		opt:    opt,
		logger: opt.Logger.With(zap.String("component", "runner")),
	}, nil
}

// Seed returns the effective seed used for think time and class choice.
func (p *Pool) Seed() int64 { return p.opt.Seed }

// Run starts every unit, releases all virtual users at a common instant and
// blocks until the last one has returned. Cancelling ctx stops the run early
// the same way the duration deadline does.
func (p *Pool) Run(ctx context.Context) (metrics.Run, error) {
	sizes := allocate(p.opt.Concurrency, p.opt.Units)
	picker := newClassPicker(p.opt.Targets)

	var (
		units  []*unit
		failed int
		hosted int
		index  int
	)
	for id, size := range sizes {
		first := index
		index += size
		exec, err := p.opt.NewExecutor(id)
		if err != nil {
			failed++
			p.logger.Warn("execution unit failed to start",
				zap.Int("unit", id),
				zap.Int("vus", size),
				zap.Error(err),
			)
			continue
		}
		units = append(units, p.newUnit(id, exec, first, size, picker))
		hosted += size
	}

	run := metrics.Run{FailedStartups: failed, RequestedVUs: p.opt.Concurrency}
	if len(units) == 0 {
		return run, ErrNoUnits
	}

	if p.opt.RatePerSecond > 0 {
		share := p.opt.RatePerSecond / float64(len(units))
		for _, u := range units {
			u.limiter = p.opt.LimiterFactory(share)
		}
	}

	events := make(chan RestartEvent, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			p.mu.Lock()
			p.restarts = append(p.restarts, ev)
			p.mu.Unlock()
		}
	}()

	s := &schedule{release: make(chan struct{})}
	var wg conc.WaitGroup
	for _, u := range units {
		u := u
		wg.Go(func() { u.run(s, events) })
	}

	s.start = time.Now()
	s.deadline = s.start.Add(p.opt.Duration)
	stop, cancelStop := context.WithDeadline(ctx, s.deadline)
	defer cancelStop()
	hard, cancelHard := context.WithDeadline(context.WithoutCancel(ctx), s.deadline.Add(p.opt.Timeout+p.opt.DrainGrace))
	defer cancelHard()
	s.stop, s.hard = stop, hard

	p.mu.Lock()
	p.units = units
	p.start = s.start
	p.running = true
	p.mu.Unlock()

	p.logger.Info("run started",
		zap.Int("units", len(units)),
		zap.Int("vus", hosted),
		zap.Int("failed_units", failed),
		zap.Duration("duration", p.opt.Duration),
	)
	close(s.release)

	wg.Wait()
	run.End = time.Now()
	close(events)
	<-drained

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	run.Start = s.start
	for _, u := range units {
		run.Units = append(run.Units, u.result)
	}
	p.logger.Info("run finished",
		zap.Duration("elapsed", run.Duration()),
		zap.Bool("canceled", ctx.Err() != nil),
	)
	return run, nil
}

// Progress returns a live snapshot. It is safe to call while Run is in
// progress and returns the zero value before the release.
func (p *Pool) Progress() metrics.Progress {
	p.mu.Lock()
	units := p.units
	start := p.start
	running := p.running
	p.mu.Unlock()

	views := make([]*metrics.Live, 0, len(units))
	active := 0
	for _, u := range units {
		views = append(views, u.live)
		if u.active.Load() {
			active++
		}
	}
	progress := metrics.MergeProgress(views)
	progress.ActiveUnits = active
	if !start.IsZero() && running {
		progress.Elapsed = time.Since(start)
	}
	return progress
}

// Restarts returns the relaunches recorded so far.
func (p *Pool) Restarts() []RestartEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RestartEvent(nil), p.restarts...)
}

// allocate splits total virtual users over n units. Sizes differ by at most
// one, none exceeds ceil(total/n) and they sum to total.
func allocate(total, n int) []int {
	if total <= 0 || n <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	base, extra := total/n, total%n
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}
