package sampler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = time.Second

// ErrUnsupported is returned by the process reader on platforms without
// getrusage.
var ErrUnsupported = errors.New("sampler: resource usage not supported on this platform")

// Usage is one raw reading of the process counters.
type Usage struct {
	User      time.Duration // cumulative user CPU time
	System    time.Duration // cumulative system CPU time
	RSSBytes  uint64
	HeapBytes uint64
}

// Reader reads the current process usage.
type Reader interface {
	Read() (Usage, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (Usage, error)

func (f ReaderFunc) Read() (Usage, error) { return f() }

// Snapshot is one interval's derived resource figures.
type Snapshot struct {
	Time       time.Time
	CPUPercent float64
	RSSBytes   uint64
	HeapBytes  uint64
}

// Stat is an average/max pair.
type Stat struct {
	Average float64
	Max     float64
}

// Summary condenses the snapshot series.
type Summary struct {
	Samples int
	Skipped int
	CPU     Stat // percent of one core
	Memory  Stat // resident bytes
	Heap    Stat // live heap bytes
}

// Options configures a Sampler.
type Options struct {
	Interval time.Duration
	Reader   Reader
	Logger   *zap.Logger
	Now      func() time.Time
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// Sampler records process CPU and memory on a fixed interval in its own
// goroutine. Start and Stop are idempotent and a stopped sampler cannot be
// restarted.
type Sampler struct {
	interval time.Duration
	reader   Reader
	logger   *zap.Logger
	now      func() time.Time

	state    atomic.Int32
	done     chan struct{}
	finished chan struct{}

	mu        sync.Mutex
	snapshots []Snapshot
	skipped   int
	prev      Usage
	prevAt    time.Time
	hasPrev   bool
}

// New creates a sampler. A nil Reader selects the process reader for the
// current platform.
func New(opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Reader == nil {
		opts.Reader = NewProcessReader()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sampler{
		interval: opts.Interval,
		reader:   opts.Reader,
		logger:   opts.Logger,
		now:      opts.Now,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start takes a baseline reading and begins sampling in the background.
func (s *Sampler) Start() {
	if !s.state.CompareAndSwap(stateIdle, stateRunning) {
		return
	}
	s.sample()
	go s.run()
}

// Stop halts sampling and waits for the sampling goroutine to exit. After Stop
// returns, Snapshots and Summary are stable.
func (s *Sampler) Stop() {
	if !s.state.CompareAndSwap(stateRunning, stateStopped) {
		s.state.CompareAndSwap(stateIdle, stateStopped)
		return
	}
	close(s.done)
	<-s.finished

	// Short runs still get one interval's worth of data.
	s.mu.Lock()
	due := len(s.snapshots) == 0 && s.hasPrev && s.now().Sub(s.prevAt) > 0
	s.mu.Unlock()
	if due {
		s.sample()
	}
}

func (s *Sampler) run() {
	defer close(s.finished)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sample()
		case <-s.done:
			return
		}
	}
}

func (s *Sampler) sample() {
	at := s.now()
	usage, err := s.reader.Read()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.skipped++
		s.logger.Warn("resource sample skipped", zap.Error(err), zap.Int("skipped", s.skipped))
		return
	}
	if !s.hasPrev {
		s.prev, s.prevAt, s.hasPrev = usage, at, true
		return
	}

	s.snapshots = append(s.snapshots, Snapshot{
		Time:       at,
		CPUPercent: cpuPercent(s.prev, usage, at.Sub(s.prevAt)),
		RSSBytes:   usage.RSSBytes,
		HeapBytes:  usage.HeapBytes,
	})
	s.prev, s.prevAt = usage, at
}

func cpuPercent(prev, cur Usage, wall time.Duration) float64 {
	if wall <= 0 {
		return 0
	}
	busy := (cur.User - prev.User) + (cur.System - prev.System)
	if busy < 0 {
		return 0
	}
	return float64(busy) / float64(wall) * 100
}

// Snapshots returns a copy of the recorded series.
func (s *Sampler) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Latest returns the most recent snapshot. It is safe to call while the
// sampler is running.
func (s *Sampler) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return Snapshot{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

// Summary condenses the recorded series. An empty series yields zero values.
func (s *Sampler) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Samples: len(s.snapshots), Skipped: s.skipped}
	if len(s.snapshots) == 0 {
		return sum
	}
	var cpu, rss, heap float64
	for _, snap := range s.snapshots {
		cpu += snap.CPUPercent
		rss += float64(snap.RSSBytes)
		heap += float64(snap.HeapBytes)
		sum.CPU.Max = max(sum.CPU.Max, snap.CPUPercent)
		sum.Memory.Max = max(sum.Memory.Max, float64(snap.RSSBytes))
		sum.Heap.Max = max(sum.Heap.Max, float64(snap.HeapBytes))
	}
	n := float64(len(s.snapshots))
	sum.CPU.Average = cpu / n
	sum.Memory.Average = rss / n
	sum.Heap.Average = heap / n
	return sum
}
