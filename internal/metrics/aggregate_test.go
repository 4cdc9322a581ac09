package metrics_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/throttlebench/internal/metrics"
)

func outcome(class metrics.Class, status int, latency time.Duration) metrics.Outcome {
	return metrics.Outcome{
		Class:      class,
		Kind:       metrics.Classify(status, nil),
		StatusCode: status,
		Latency:    latency,
	}
}

func networkOutcome(class metrics.Class, reason string) metrics.Outcome {
	return metrics.Outcome{
		Class:   class,
		Kind:    metrics.KindNetworkError,
		Latency: ms(5),
		Reason:  reason,
	}
}

func sampleRun() metrics.Run {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	u0 := metrics.NewWorkerResult(0, 2)
	u0.Started = start
	u0.Finished = start.Add(10 * time.Second)
	u0.Record(outcome(metrics.ClassLight, 200, ms(10)))
	u0.Record(outcome(metrics.ClassLight, 200, ms(20)))
	u0.Record(outcome(metrics.ClassHeavy, 429, ms(30)))
	u0.Record(outcome(metrics.ClassHeavy, 503, ms(40)))

	u1 := metrics.NewWorkerResult(1, 2)
	u1.Started = start
	u1.Finished = start.Add(10 * time.Second)
	u1.Restarts = 1
	u1.Abandoned = 2
	u1.Record(outcome(metrics.ClassLight, 404, ms(50)))
	u1.Record(networkOutcome(metrics.ClassHeavy, metrics.ReasonConnectionRefused))
	u1.Record(networkOutcome(metrics.ClassLight, ""))
	u1.Record(outcome(metrics.ClassLight, 200, ms(60)))

	return metrics.Run{
		Units:          []*metrics.WorkerResult{u1, u0},
		Start:          start,
		End:            start.Add(10 * time.Second),
		FailedStartups: 1,
		RequestedVUs:   4,
	}
}

func TestAggregateAccounting(t *testing.T) {
	report := metrics.Aggregate(sampleRun())

	c := report.Counts
	assert.EqualValues(t, 8, c.Total)
	assert.EqualValues(t, 3, c.Success)
	assert.EqualValues(t, 1, c.RateLimited)
	assert.EqualValues(t, 1, c.ClientError)
	assert.EqualValues(t, 1, c.ServerError)
	assert.EqualValues(t, 2, c.NetworkError)
	assert.Equal(t, c.Total, c.Success+c.RateLimited+c.Failed())

	var classTotal int64
	for _, cr := range report.Classes {
		classTotal += cr.Counts.Total
	}
	assert.Equal(t, c.Total, classTotal)

	var statusTotal int64
	for _, n := range report.StatusCodes {
		statusTotal += n
	}
	assert.Equal(t, c.Total, statusTotal)
	assert.EqualValues(t, 2, report.StatusCodes[0])

	assert.EqualValues(t, 1, report.NetworkErrors[metrics.ReasonConnectionRefused])
	assert.EqualValues(t, 1, report.NetworkErrors[metrics.ReasonOther])
}

func TestAggregateRatesAndUnits(t *testing.T) {
	report := metrics.Aggregate(sampleRun())

	assert.Equal(t, 10*time.Second, report.Duration)
	assert.InDelta(t, 0.8, report.RequestsPerSec, 1e-9)
	assert.InDelta(t, 37.5, report.SuccessRate, 1e-9)
	assert.InDelta(t, 12.5, report.RateLimitedRate, 1e-9)
	assert.InDelta(t, 50.0, report.ErrorRate, 1e-9)

	require.Len(t, report.Units, 2)
	assert.Equal(t, 0, report.Units[0].UnitID)
	assert.Equal(t, 1, report.Units[1].UnitID)
	assert.EqualValues(t, 4, report.Units[1].Total)
	assert.Equal(t, 10*time.Second, report.Units[0].Active)

	assert.Equal(t, 1, report.Restarts)
	assert.EqualValues(t, 2, report.Abandoned)
	assert.Equal(t, 1, report.FailedStartups)
	assert.Equal(t, 4, report.RequestedVUs)
	assert.Equal(t, 4, report.ActiveVUs)

	light := report.Classes[metrics.ClassLight]
	assert.EqualValues(t, 5, light.Counts.Total)
	assert.InDelta(t, 60.0, light.SuccessRate, 1e-9)
	heavy := report.Classes[metrics.ClassHeavy]
	assert.EqualValues(t, 3, heavy.Counts.Total)
	assert.InDelta(t, 100.0/3, heavy.RateLimitRate, 1e-9)
}

func TestAggregateIsIdempotent(t *testing.T) {
	run := sampleRun()
	before := len(run.Units[0].Outcomes)

	first := metrics.Aggregate(run)
	second := metrics.Aggregate(run)

	assert.Equal(t, first, second)
	assert.Len(t, run.Units[0].Outcomes, before)
	assert.Equal(t, 1, run.Units[0].UnitID, "unit order of the input must be preserved")
}

func TestAggregateEmptyRun(t *testing.T) {
	report := metrics.Aggregate(metrics.Run{})

	assert.Zero(t, report.Counts.Total)
	for _, v := range []float64{report.RequestsPerSec, report.SuccessRate, report.RateLimitedRate, report.ErrorRate} {
		assert.False(t, math.IsNaN(v))
		assert.Zero(t, v)
	}
	assert.Equal(t, metrics.LatencyStats{}, report.Latency)
	assert.Empty(t, report.Classes)
}

func TestAggregateSkipsNilUnits(t *testing.T) {
	u := metrics.NewWorkerResult(3, 1)
	u.Record(outcome(metrics.ClassLight, 200, ms(12)))

	report := metrics.Aggregate(metrics.Run{Units: []*metrics.WorkerResult{nil, u}})

	assert.EqualValues(t, 1, report.Counts.Total)
	require.Len(t, report.Units, 1)
	// A single sample is every percentile.
	lat := report.Classes[metrics.ClassLight].Latency
	assert.Equal(t, ms(12), lat.P50)
	assert.Equal(t, ms(12), lat.P99)
	assert.Equal(t, ms(12), lat.Min)
	assert.Equal(t, ms(12), lat.Max)
}
