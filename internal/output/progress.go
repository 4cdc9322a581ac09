package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/throttlebench/internal/metrics"
)

// ProgressSource provides live counters while a run is in progress.
type ProgressSource interface {
	Progress() metrics.Progress
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   ProgressSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source ProgressSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, FormatProgress(p.source.Progress()))
		case <-p.done:
			return
		}
	}
}

// FormatProgress renders one carriage-return-prefixed status line.
func FormatProgress(pr metrics.Progress) string {
	rps := 0.0
	if pr.Elapsed > 0 {
		rps = float64(pr.Total) / pr.Elapsed.Seconds()
	}
	return fmt.Sprintf("\rRequests: %d | OK: %d | 429: %d | Errors: %d | RPS: %.1f | P99: %s | Units: %d",
		pr.Total, pr.Success, pr.RateLimited, pr.Errors, rps, pr.P99.Round(time.Microsecond), pr.ActiveUnits)
}
