package output

import (
	"strconv"
	"time"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/engine"
	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/threshold"
)

const bytesPerMB = 1 << 20

// Document is the persisted result of one run. Latencies are milliseconds,
// memory is megabytes and durations are seconds. The throughput, requests,
// latency, rateLimitHits, resources and duration keys are read by the
// external report generator and keep their names.
type Document struct {
	RunID          string                  `json:"runId" yaml:"runId"`
	Label          string                  `json:"label" yaml:"label"`
	StartedAt      time.Time               `json:"startedAt" yaml:"startedAt"`
	FinishedAt     time.Time               `json:"finishedAt" yaml:"finishedAt"`
	Duration       float64                 `json:"duration" yaml:"duration"`
	Elapsed        float64                 `json:"elapsed" yaml:"elapsed"`
	Seed           int64                   `json:"seed" yaml:"seed"`
	Config         ConfigEcho              `json:"config" yaml:"config"`
	Throughput     Throughput              `json:"throughput" yaml:"throughput"`
	Requests       Requests                `json:"requests" yaml:"requests"`
	Latency        Latency                 `json:"latency" yaml:"latency"`
	RateLimitHits  int64                   `json:"rateLimitHits" yaml:"rateLimitHits"`
	Resources      Resources               `json:"resources" yaml:"resources"`
	Classes        map[string]ClassSummary `json:"classes" yaml:"classes"`
	StatusCodes    map[string]int64        `json:"statusCodes" yaml:"statusCodes"`
	NetworkErrors  map[string]int64        `json:"networkErrors" yaml:"networkErrors"`
	Distribution   []Bucket                `json:"distribution" yaml:"distribution"`
	Units          []Unit                  `json:"units" yaml:"units"`
	Restarts       int                     `json:"restarts" yaml:"restarts"`
	Abandoned      int64                   `json:"abandoned" yaml:"abandoned"`
	FailedStartups int                     `json:"failedStartups" yaml:"failedStartups"`
	Thresholds     []ThresholdResult       `json:"thresholds" yaml:"thresholds"`
	Passed         bool                    `json:"passed" yaml:"passed"`
}

// ConfigEcho repeats the settings that shaped the run.
type ConfigEcho struct {
	Class        string  `json:"class" yaml:"class"`
	LightURL     string  `json:"lightUrl,omitempty" yaml:"lightUrl,omitempty"`
	HeavyURL     string  `json:"heavyUrl,omitempty" yaml:"heavyUrl,omitempty"`
	Method       string  `json:"method" yaml:"method"`
	Concurrency  int     `json:"concurrency" yaml:"concurrency"`
	Duration     string  `json:"duration" yaml:"duration"`
	Timeout      string  `json:"timeout" yaml:"timeout"`
	ThinkTimeMin string  `json:"thinkTimeMin" yaml:"thinkTimeMin"`
	ThinkTimeMax string  `json:"thinkTimeMax" yaml:"thinkTimeMax"`
	RampUp       string  `json:"rampUp" yaml:"rampUp"`
	LightRatio   int     `json:"lightRatio" yaml:"lightRatio"`
	Workers      int     `json:"workers" yaml:"workers"`
	Rate         float64 `json:"rate" yaml:"rate"`
	MaxRestarts  int     `json:"maxRestarts" yaml:"maxRestarts"`
}

type Throughput struct {
	Average float64 `json:"average" yaml:"average"`
}

type Requests struct {
	Average         float64 `json:"average" yaml:"average"`
	Total           int64   `json:"total" yaml:"total"`
	Success         int64   `json:"success" yaml:"success"`
	RateLimited     int64   `json:"rateLimited" yaml:"rateLimited"`
	ClientError     int64   `json:"clientError" yaml:"clientError"`
	ServerError     int64   `json:"serverError" yaml:"serverError"`
	NetworkError    int64   `json:"networkError" yaml:"networkError"`
	SuccessRate     float64 `json:"successRate" yaml:"successRate"`
	RateLimitedRate float64 `json:"rateLimitedRate" yaml:"rateLimitedRate"`
	ErrorRate       float64 `json:"errorRate" yaml:"errorRate"`
}

type Latency struct {
	Average float64 `json:"average" yaml:"average"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	P50     float64 `json:"p50" yaml:"p50"`
	P75     float64 `json:"p75" yaml:"p75"`
	P90     float64 `json:"p90" yaml:"p90"`
	P95     float64 `json:"p95" yaml:"p95"`
	P99     float64 `json:"p99" yaml:"p99"`
}

type Stat struct {
	Average float64 `json:"average" yaml:"average"`
	Max     float64 `json:"max" yaml:"max"`
}

type Resources struct {
	CPU     Stat `json:"cpu" yaml:"cpu"`
	Memory  Stat `json:"memory" yaml:"memory"`
	Heap    Stat `json:"heap" yaml:"heap"`
	Samples int  `json:"samples" yaml:"samples"`
	Skipped int  `json:"skipped" yaml:"skipped"`
}

type ClassSummary struct {
	Requests        int64   `json:"requests" yaml:"requests"`
	Success         int64   `json:"success" yaml:"success"`
	RateLimited     int64   `json:"rateLimited" yaml:"rateLimited"`
	Errors          int64   `json:"errors" yaml:"errors"`
	RequestsPerSec  float64 `json:"requestsPerSec" yaml:"requestsPerSec"`
	SuccessRate     float64 `json:"successRate" yaml:"successRate"`
	RateLimitedRate float64 `json:"rateLimitedRate" yaml:"rateLimitedRate"`
	Latency         Latency `json:"latency" yaml:"latency"`
}

type Bucket struct {
	FromMs float64 `json:"fromMs" yaml:"fromMs"`
	ToMs   float64 `json:"toMs" yaml:"toMs"`
	Count  int64   `json:"count" yaml:"count"`
}

type Unit struct {
	ID            int     `json:"id" yaml:"id"`
	VUs           int     `json:"vus" yaml:"vus"`
	Requests      int64   `json:"requests" yaml:"requests"`
	Restarts      int     `json:"restarts" yaml:"restarts"`
	Abandoned     int64   `json:"abandoned" yaml:"abandoned"`
	ActiveSeconds float64 `json:"activeSeconds" yaml:"activeSeconds"`
}

type ThresholdResult struct {
	Expression string  `json:"expression" yaml:"expression"`
	Actual     float64 `json:"actual" yaml:"actual"`
	Pass       bool    `json:"pass" yaml:"pass"`
}

// NewDocument flattens a run result into its persisted form.
func NewDocument(cfg config.Config, result engine.Result, thresholds []threshold.Result) Document {
	r := result.Report
	res := result.Resources

	doc := Document{
		RunID:      result.RunID,
		Label:      result.Label,
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
		Duration:   cfg.Duration.Seconds(),
		Elapsed:    r.Duration.Seconds(),
		Seed:       result.Seed,
		Config:     echoConfig(cfg),
		Throughput: Throughput{Average: r.RequestsPerSec},
		Requests: Requests{
			Average:         r.RequestsPerSec,
			Total:           r.Counts.Total,
			Success:         r.Counts.Success,
			RateLimited:     r.Counts.RateLimited,
			ClientError:     r.Counts.ClientError,
			ServerError:     r.Counts.ServerError,
			NetworkError:    r.Counts.NetworkError,
			SuccessRate:     r.SuccessRate,
			RateLimitedRate: r.RateLimitedRate,
			ErrorRate:       r.ErrorRate,
		},
		Latency:       latency(r.Latency),
		RateLimitHits: r.Counts.RateLimited,
		Resources: Resources{
			CPU:     Stat{Average: res.CPU.Average, Max: res.CPU.Max},
			Memory:  Stat{Average: res.Memory.Average / bytesPerMB, Max: res.Memory.Max / bytesPerMB},
			Heap:    Stat{Average: res.Heap.Average / bytesPerMB, Max: res.Heap.Max / bytesPerMB},
			Samples: res.Samples,
			Skipped: res.Skipped,
		},
		Classes:        map[string]ClassSummary{},
		StatusCodes:    map[string]int64{},
		NetworkErrors:  map[string]int64{},
		Distribution:   []Bucket{},
		Units:          []Unit{},
		Restarts:       r.Restarts,
		Abandoned:      r.Abandoned,
		FailedStartups: r.FailedStartups,
		Thresholds:     []ThresholdResult{},
		Passed:         threshold.Passed(thresholds),
	}

	for class, c := range r.Classes {
		doc.Classes[string(class)] = ClassSummary{
			Requests:        c.Counts.Total,
			Success:         c.Counts.Success,
			RateLimited:     c.Counts.RateLimited,
			Errors:          c.Counts.Failed(),
			RequestsPerSec:  c.RequestsPerSec,
			SuccessRate:     c.SuccessRate,
			RateLimitedRate: c.RateLimitRate,
			Latency:         latency(c.Latency),
		}
	}
	for code, n := range r.StatusCodes {
		doc.StatusCodes[strconv.Itoa(code)] = n
	}
	for reason, n := range r.NetworkErrors {
		doc.NetworkErrors[reason] = n
	}
	for _, b := range r.Distribution {
		doc.Distribution = append(doc.Distribution, Bucket{FromMs: millis(b.From), ToMs: millis(b.To), Count: b.Count})
	}
	for _, u := range r.Units {
		doc.Units = append(doc.Units, Unit{
			ID:            u.UnitID,
			VUs:           u.VUs,
			Requests:      u.Total,
			Restarts:      u.Restarts,
			Abandoned:     u.Abandoned,
			ActiveSeconds: u.Active.Seconds(),
		})
	}
	for _, t := range thresholds {
		doc.Thresholds = append(doc.Thresholds, ThresholdResult{
			Expression: t.Threshold.Raw,
			Actual:     t.Actual,
			Pass:       t.Pass,
		})
	}
	return doc
}

func echoConfig(cfg config.Config) ConfigEcho {
	return ConfigEcho{
		Class:        cfg.ClassLabel(),
		LightURL:     cfg.LightURL,
		HeavyURL:     cfg.HeavyURL,
		Method:       cfg.Method,
		Concurrency:  cfg.Concurrency,
		Duration:     cfg.Duration.String(),
		Timeout:      cfg.Timeout.String(),
		ThinkTimeMin: cfg.ThinkTimeMin.String(),
		ThinkTimeMax: cfg.ThinkTimeMax.String(),
		RampUp:       cfg.RampUp.String(),
		LightRatio:   cfg.LightRatio,
		Workers:      cfg.Workers,
		Rate:         cfg.Rate,
		MaxRestarts:  cfg.MaxRestarts,
	}
}

func latency(l metrics.LatencyStats) Latency {
	return Latency{
		Average: millis(l.Mean),
		Min:     millis(l.Min),
		Max:     millis(l.Max),
		P50:     millis(l.P50),
		P75:     millis(l.P75),
		P90:     millis(l.P90),
		P95:     millis(l.P95),
		P99:     millis(l.P99),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
