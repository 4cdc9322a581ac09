package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/sampler"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g. "latency", "rate_limited"
	Aggregate string  // e.g. "p99", "rate", "count"
	Operator  string  // "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Input is what thresholds are evaluated against.
type Input struct {
	Report    metrics.Report
	Resources sampler.Summary
}

// Evaluator evaluates thresholds against a finished run.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the run.
func (e *Evaluator) Evaluate(in Input) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, in))
	}
	return results
}

// Passed reports whether every result passed. No results means passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, in Input) Result {
	actual, err := extractMetricValue(t, in)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var pattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// metricAggregates lists the aggregates each metric supports. Latencies are in
// milliseconds, rates in percent of all requests, memory in megabytes.
var metricAggregates = map[string][]string{
	"latency":       {"p50", "p75", "p90", "p95", "p99", "avg", "min", "max"},
	"requests":      {"count", "rps"},
	"success":       {"count", "rate"},
	"rate_limited":  {"count", "rate"},
	"errors":        {"count", "rate"},
	"client_error":  {"count", "rate"},
	"server_error":  {"count", "rate"},
	"network_error": {"count", "rate"},
	"restarts":      {"count"},
	"cpu":           {"avg", "max"},
	"memory":        {"avg", "max"},
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "latency:p99 < 250"        (latency percentile in ms)
//   - "latency:avg < 100"        (mean latency in ms)
//   - "requests:rps > 100"       (requests per second)
//   - "success:rate > 95"        (percent of requests)
//   - "rate_limited:rate < 5"    (percent of requests answered with 429)
//   - "network_error:count == 0" (absolute count)
//   - "cpu:max < 80"             (percent of one core)
//   - "memory:avg < 512"         (resident MB)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'latency:p99 < 250')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := metricAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(supportedMetrics(), ", "))
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func supportedMetrics() []string {
	names := make([]string, 0, len(metricAggregates))
	for name := range metricAggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	return contains([]string{"<", "<=", ">", ">=", "=="}, operator)
}

func extractMetricValue(t Threshold, in Input) (float64, error) {
	r := in.Report
	switch t.Metric {
	case "latency":
		return extractLatencyMetric(t.Aggregate, r.Latency)
	case "requests":
		if t.Aggregate == "rps" {
			return r.RequestsPerSec, nil
		}
		return float64(r.Counts.Total), nil
	case "success":
		return countOrRate(t.Aggregate, r.Counts.Success, r.Counts.Total), nil
	case "rate_limited":
		return countOrRate(t.Aggregate, r.Counts.RateLimited, r.Counts.Total), nil
	case "errors":
		return countOrRate(t.Aggregate, r.Counts.Failed(), r.Counts.Total), nil
	case "client_error":
		return countOrRate(t.Aggregate, r.Counts.ClientError, r.Counts.Total), nil
	case "server_error":
		return countOrRate(t.Aggregate, r.Counts.ServerError, r.Counts.Total), nil
	case "network_error":
		return countOrRate(t.Aggregate, r.Counts.NetworkError, r.Counts.Total), nil
	case "restarts":
		return float64(r.Restarts), nil
	case "cpu":
		return avgOrMax(t.Aggregate, in.Resources.CPU), nil
	case "memory":
		return avgOrMax(t.Aggregate, in.Resources.Memory) / (1 << 20), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, l metrics.LatencyStats) (float64, error) {
	var d float64
	switch aggregate {
	case "p50":
		d = float64(l.P50)
	case "p75":
		d = float64(l.P75)
	case "p90":
		d = float64(l.P90)
	case "p95":
		d = float64(l.P95)
	case "p99":
		d = float64(l.P99)
	case "avg":
		d = float64(l.Mean)
	case "min":
		d = float64(l.Min)
	case "max":
		d = float64(l.Max)
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
	return d / 1e6, nil
}

func countOrRate(aggregate string, part, total int64) float64 {
	if aggregate == "count" {
		return float64(part)
	}
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func avgOrMax(aggregate string, s sampler.Stat) float64 {
	if aggregate == "max" {
		return s.Max
	}
	return s.Average
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
