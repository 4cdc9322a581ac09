package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Latencies are tracked in microseconds from 1µs up to 60s.
	histogramLowest  = 1
	histogramHighest = 60_000_000
)

// Bucket is one bar of the latency distribution.
type Bucket struct {
	From  time.Duration
	To    time.Duration
	Count int64
}

func newHistogram(sigfigs int) *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramLowest, histogramHighest, sigfigs)
}

func recordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Distribution buckets latencies into HDR bars with one significant figure,
// keeping only non-empty bars.
func Distribution(latencies []time.Duration) []Bucket {
	if len(latencies) == 0 {
		return nil
	}
	h := newHistogram(1)
	for _, l := range latencies {
		recordLatency(h, l)
	}
	var buckets []Bucket
	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		buckets = append(buckets, Bucket{
			From:  time.Duration(bar.From) * time.Microsecond,
			To:    time.Duration(bar.To) * time.Microsecond,
			Count: bar.Count,
		})
	}
	return buckets
}
