package runner

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/throttlebench/internal/metrics"
)

// unit is one execution unit: a group of virtual users sharing an executor
// and a limiter, with one collector goroutine as the only writer of its
// result buffer.
type unit struct {
	id      int
	exec    Executor
	limiter *rate.Limiter
	vus     []*VirtualUser
	picker  classPicker
	opt     *Options
	logger  *zap.Logger

	result *metrics.WorkerResult
	live   *metrics.Live

	active    atomic.Bool
	budget    atomic.Int64
	restarts  atomic.Int64
	abandoned atomic.Int64
}

func (p *Pool) newUnit(id int, exec Executor, first, size int, picker classPicker) *unit {
	u := &unit{
		id:     id,
		exec:   exec,
		picker: picker,
		opt:    &p.opt,
		logger: p.logger.With(zap.Int("unit", id)),
		result: metrics.NewWorkerResult(id, size),
		live:   metrics.NewLive(),
	}
	u.budget.Store(int64(p.opt.MaxRestarts))
	for i := 0; i < size; i++ {
		index := first + i
		u.vus = append(u.vus, &VirtualUser{
			Index:  index,
			UserID: p.opt.NewUserID(),
			rng:    rand.New(rand.NewSource(p.opt.Seed + int64(index))),
		})
	}
	return u
}

// run waits for the release barrier, hosts the unit's virtual users until
// they all return and then seals the result buffer.
func (u *unit) run(s *schedule, events chan<- RestartEvent) {
	<-s.release
	u.active.Store(true)
	defer u.active.Store(false)
	u.result.Started = s.start

	outcomes := make(chan metrics.Outcome, 2*len(u.vus))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			u.result.Record(o)
			u.live.Observe(o)
		}
	}()

	var wg sync.WaitGroup
	for _, vu := range u.vus {
		wg.Add(1)
		go func(vu *VirtualUser) {
			defer wg.Done()
			u.supervise(vu, s, outcomes, events)
		}(vu)
	}
	wg.Wait()
	close(outcomes)
	<-collected

	u.result.Finished = time.Now()
	u.result.Restarts = int(u.restarts.Load())
	u.result.Abandoned = u.abandoned.Load()
}

// supervise runs one virtual user and relaunches it with the same identity
// after a crash, while the stop signal has not fired and the unit's restart
// budget allows.
func (u *unit) supervise(vu *VirtualUser, s *schedule, out chan<- metrics.Outcome, events chan<- RestartEvent) {
	for {
		var pc panics.Catcher
		pc.Try(func() { vu.loop(u, s, out) })
		recovered := pc.Recovered()
		if recovered == nil {
			return
		}
		err := recovered.AsError()
		if s.stop.Err() != nil {
			u.logger.Warn("virtual user crashed after stop", zap.Int("vu", vu.Index), zap.Error(err))
			return
		}
		if !u.takeRestart() {
			u.logger.Error("virtual user crashed, restart budget exhausted",
				zap.Int("vu", vu.Index),
				zap.Error(err),
			)
			return
		}
		u.restarts.Add(1)
		u.logger.Warn("virtual user crashed, relaunching",
			zap.Int("vu", vu.Index),
			zap.Duration("backoff", u.opt.RestartBackoff),
			zap.Error(err),
		)
		events <- RestartEvent{UnitID: u.id, VU: vu.Index, Err: err, At: time.Now()}
		if !sleep(s.stop, u.opt.RestartBackoff) {
			return
		}
	}
}

func (u *unit) takeRestart() bool {
	for {
		left := u.budget.Load()
		if left <= 0 {
			return false
		}
		if u.budget.CompareAndSwap(left, left-1) {
			return true
		}
	}
}
