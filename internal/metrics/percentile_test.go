package metrics_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/throttlebench/internal/metrics"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestPercentileCeilingRank(t *testing.T) {
	sorted := []time.Duration{ms(10), ms(20), ms(30), ms(40), ms(50), ms(60), ms(70), ms(80), ms(90), ms(100)}

	assert.Equal(t, ms(50), metrics.Percentile(sorted, 50))
	assert.Equal(t, ms(100), metrics.Percentile(sorted, 99))
	assert.Equal(t, ms(10), metrics.Percentile(sorted, 0))
	assert.Equal(t, ms(100), metrics.Percentile(sorted, 100))
	assert.Equal(t, ms(70), metrics.Percentile(sorted, 70))
}

func TestPercentileEdges(t *testing.T) {
	assert.Zero(t, metrics.Percentile(nil, 50))

	single := []time.Duration{ms(42)}
	for _, p := range []float64{0, 1, 50, 99, 100} {
		assert.Equal(t, ms(42), metrics.Percentile(single, p), "p=%v", p)
	}

	// Out of range percentiles clamp instead of panicking.
	sorted := []time.Duration{ms(1), ms(2)}
	assert.Equal(t, ms(1), metrics.Percentile(sorted, -5))
	assert.Equal(t, ms(2), metrics.Percentile(sorted, 250))
}

func TestComputeLatencyOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	latencies := make([]time.Duration, 1000)
	for i := range latencies {
		latencies[i] = time.Duration(rng.Intn(5000)+1) * time.Microsecond
	}
	original := append([]time.Duration(nil), latencies...)

	stats := metrics.ComputeLatency(latencies)

	require.Equal(t, 1000, stats.Count)
	assert.LessOrEqual(t, stats.Min, stats.P50)
	assert.LessOrEqual(t, stats.P50, stats.P75)
	assert.LessOrEqual(t, stats.P75, stats.P90)
	assert.LessOrEqual(t, stats.P90, stats.P95)
	assert.LessOrEqual(t, stats.P95, stats.P99)
	assert.LessOrEqual(t, stats.P99, stats.Max)
	assert.Equal(t, original, latencies, "input must not be reordered")
}

func TestComputeLatencyMean(t *testing.T) {
	stats := metrics.ComputeLatency([]time.Duration{ms(50), ms(10), ms(30), ms(20), ms(40)})

	assert.Equal(t, ms(10), stats.Min)
	assert.Equal(t, ms(50), stats.Max)
	assert.Equal(t, ms(30), stats.Mean)
	assert.Equal(t, ms(30), stats.P50)
}

func TestComputeLatencyEmpty(t *testing.T) {
	assert.Equal(t, metrics.LatencyStats{}, metrics.ComputeLatency(nil))
}

func TestDistribution(t *testing.T) {
	assert.Nil(t, metrics.Distribution(nil))

	latencies := []time.Duration{ms(1), ms(1), ms(5), ms(200)}
	buckets := metrics.Distribution(latencies)
	require.NotEmpty(t, buckets)

	var total int64
	for _, b := range buckets {
		assert.Positive(t, b.Count)
		assert.LessOrEqual(t, b.From, b.To)
		total += b.Count
	}
	assert.EqualValues(t, len(latencies), total)
}
