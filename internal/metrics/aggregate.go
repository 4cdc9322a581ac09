package metrics

import (
	"sort"
	"time"
)

// Counts holds per-kind request totals.
type Counts struct {
	Total        int64
	Success      int64
	RateLimited  int64
	ClientError  int64
	ServerError  int64
	NetworkError int64
}

// Failed counts requests that neither succeeded nor were rate limited.
func (c Counts) Failed() int64 {
	return c.ClientError + c.ServerError + c.NetworkError
}

func (c *Counts) add(k Kind, n int64) {
	c.Total += n
	switch k {
	case KindSuccess:
		c.Success += n
	case KindRateLimited:
		c.RateLimited += n
	case KindClientError:
		c.ClientError += n
	case KindServerError:
		c.ServerError += n
	default:
		c.NetworkError += n
	}
}

// ClassReport is the breakdown for one request class.
type ClassReport struct {
	Class          Class
	Counts         Counts
	Latency        LatencyStats
	RequestsPerSec float64
	SuccessRate    float64
	RateLimitRate  float64
}

// UnitReport summarizes one execution unit.
type UnitReport struct {
	UnitID    int
	VUs       int
	Total     int64
	Restarts  int
	Abandoned int64
	Active    time.Duration
}

// Report is the final aggregate of a run. It is computed once and never
// mutated afterwards.
type Report struct {
	Counts          Counts
	Duration        time.Duration
	RequestsPerSec  float64
	SuccessRate     float64
	RateLimitedRate float64
	ErrorRate       float64
	Latency         LatencyStats
	Classes         map[Class]ClassReport
	StatusCodes     map[int]int64
	NetworkErrors   map[string]int64
	Distribution    []Bucket
	Units           []UnitReport
	Restarts        int
	Abandoned       int64
	FailedStartups  int
	RequestedVUs    int
	ActiveVUs       int
}

// Aggregate merges all unit results into a Report. It is a pure function of
// its input: units are read, never modified, and merge order does not matter.
func Aggregate(run Run) Report {
	report := Report{
		Duration:       run.Duration(),
		Classes:        map[Class]ClassReport{},
		StatusCodes:    map[int]int64{},
		NetworkErrors:  map[string]int64{},
		FailedStartups: run.FailedStartups,
		RequestedVUs:   run.RequestedVUs,
	}

	var all []time.Duration
	classLatencies := map[Class][]time.Duration{}
	classCounts := map[Class]*Counts{}

	units := make([]*WorkerResult, 0, len(run.Units))
	for _, u := range run.Units {
		if u != nil {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].UnitID < units[j].UnitID })

	for _, u := range units {
		for _, o := range u.Outcomes {
			report.Counts.add(o.Kind, 1)
			all = append(all, o.Latency)
			classLatencies[o.Class] = append(classLatencies[o.Class], o.Latency)
			cc, ok := classCounts[o.Class]
			if !ok {
				cc = &Counts{}
				classCounts[o.Class] = cc
			}
			cc.add(o.Kind, 1)
			report.StatusCodes[o.StatusCode]++
			if o.Kind == KindNetworkError {
				reason := o.Reason
				if reason == "" {
					reason = ReasonOther
				}
				report.NetworkErrors[reason]++
			}
		}
		report.Units = append(report.Units, UnitReport{
			UnitID:    u.UnitID,
			VUs:       u.VUs,
			Total:     u.Total(),
			Restarts:  u.Restarts,
			Abandoned: u.Abandoned,
			Active:    u.Active(),
		})
		report.Restarts += u.Restarts
		report.Abandoned += u.Abandoned
		report.ActiveVUs += u.VUs
	}

	report.Latency = ComputeLatency(all)
	report.Distribution = Distribution(all)
	report.RequestsPerSec = perSecond(report.Counts.Total, report.Duration)
	report.SuccessRate = percent(report.Counts.Success, report.Counts.Total)
	report.RateLimitedRate = percent(report.Counts.RateLimited, report.Counts.Total)
	report.ErrorRate = percent(report.Counts.Failed(), report.Counts.Total)

	for class, counts := range classCounts {
		report.Classes[class] = ClassReport{
			Class:          class,
			Counts:         *counts,
			Latency:        ComputeLatency(classLatencies[class]),
			RequestsPerSec: perSecond(counts.Total, report.Duration),
			SuccessRate:    percent(counts.Success, counts.Total),
			RateLimitRate:  percent(counts.RateLimited, counts.Total),
		}
	}

	return report
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func perSecond(total int64, elapsed time.Duration) float64 {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(total) / elapsed.Seconds()
}
