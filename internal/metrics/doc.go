// Package metrics defines request outcomes and turns per-unit result buffers
// into the final run report.
//
// # Outcomes
//
// Every request attempt becomes one [Outcome] whose [Kind] is a closed
// enumeration:
//
//	success | rate_limited | client_error | server_error | network_error
//
// [Classify] maps an HTTP status (or a transport error) onto a Kind. Only HTTP
// 429 is interpreted as rate limiting; response bodies are never inspected.
//
// # Per-unit accumulation
//
// Each execution unit owns one [WorkerResult]. Its collector goroutine is the
// only writer, so no locking is needed while the run is in progress. A [Live]
// view per unit feeds the progress line with atomics and a small HDR histogram.
//
// # Aggregation
//
// [Aggregate] is a pure function over a [Run]. It concatenates all latencies,
// sorts them and reads percentiles with [Percentile]:
//
//	index = ceil(P/100 × N) − 1, clamped to [0, N−1]
//
// The ceiling rank is a fixed convention kept for compatibility with earlier
// result files; it is not an interpolating estimator. Rates over an empty run
// are 0, never NaN.
package metrics
