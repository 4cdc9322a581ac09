package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Live is a per-unit running view used only for progress display. The unit's
// collector is its single writer; readers load the atomics and lock only the
// histogram.
type Live struct {
	total       atomic.Int64
	success     atomic.Int64
	rateLimited atomic.Int64
	errors      atomic.Int64

	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// Progress is a point-in-time view across all units.
type Progress struct {
	Total       int64
	Success     int64
	RateLimited int64
	Errors      int64
	P99         time.Duration
	Elapsed     time.Duration
	ActiveUnits int
}

// NewLive creates an empty live view.
func NewLive() *Live {
	return &Live{hist: newHistogram(2)}
}

// Observe updates the view with one outcome.
func (l *Live) Observe(o Outcome) {
	l.total.Add(1)
	switch o.Kind {
	case KindSuccess:
		l.success.Add(1)
	case KindRateLimited:
		l.rateLimited.Add(1)
	default:
		l.errors.Add(1)
	}
	l.mu.Lock()
	recordLatency(l.hist, o.Latency)
	l.mu.Unlock()
}

// MergeProgress sums live views into one Progress value.
func MergeProgress(views []*Live) Progress {
	var p Progress
	merged := newHistogram(2)
	for _, v := range views {
		if v == nil {
			continue
		}
		p.Total += v.total.Load()
		p.Success += v.success.Load()
		p.RateLimited += v.rateLimited.Load()
		p.Errors += v.errors.Load()
		v.mu.Lock()
		merged.Merge(v.hist)
		v.mu.Unlock()
	}
	if merged.TotalCount() > 0 {
		p.P99 = time.Duration(merged.ValueAtQuantile(99)) * time.Microsecond
	}
	return p
}
