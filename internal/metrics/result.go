package metrics

import "time"

// WorkerResult accumulates the outcomes produced by the virtual users of one
// execution unit. Exactly one goroutine (the unit's collector) calls Record
// during a run; the value is read-only once the unit reports completion.
type WorkerResult struct {
	UnitID    int
	VUs       int
	Restarts  int
	Abandoned int64 // in-flight requests cut off by the hard drain limit
	Started   time.Time
	Finished  time.Time
	Outcomes  []Outcome

	counts [kindCount]int64
}

// NewWorkerResult creates an empty accumulator for the given unit.
func NewWorkerResult(unitID, vus int) *WorkerResult {
	return &WorkerResult{
		UnitID:   unitID,
		VUs:      vus,
		Outcomes: make([]Outcome, 0, 256),
	}
}

// Record appends one outcome.
func (w *WorkerResult) Record(o Outcome) {
	if o.Kind < 0 || o.Kind >= kindCount {
		o.Kind = KindNetworkError
	}
	w.counts[o.Kind]++
	w.Outcomes = append(w.Outcomes, o)
}

// Count returns the number of outcomes of one kind.
func (w *WorkerResult) Count(k Kind) int64 {
	if w == nil || k < 0 || k >= kindCount {
		return 0
	}
	return w.counts[k]
}

// Total returns the number of recorded outcomes.
func (w *WorkerResult) Total() int64 {
	if w == nil {
		return 0
	}
	var total int64
	for _, c := range w.counts {
		total += c
	}
	return total
}

// Active returns how long the unit was hosting virtual users.
func (w *WorkerResult) Active() time.Duration {
	if w == nil || w.Started.IsZero() || w.Finished.Before(w.Started) {
		return 0
	}
	return w.Finished.Sub(w.Started)
}

// Run is everything the pool hands over after joining its execution units.
type Run struct {
	Units          []*WorkerResult
	Start          time.Time // instant the first virtual user was released
	End            time.Time // instant the last virtual user returned
	FailedStartups int
	RequestedVUs   int
}

// Duration is the measured wall-clock window used for throughput.
func (r Run) Duration() time.Duration {
	if r.Start.IsZero() || r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}
