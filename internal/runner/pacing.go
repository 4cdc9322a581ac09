package runner

import (
	"context"
	"math/rand"
	"time"
)

// classPicker makes the weighted class choice for one virtual user.
type classPicker struct {
	targets    []Target
	cumulative []int
	total      int
}

func newClassPicker(targets []Target) classPicker {
	p := classPicker{}
	for _, t := range targets {
		if t.Weight <= 0 {
			continue
		}
		p.total += t.Weight
		p.targets = append(p.targets, t)
		p.cumulative = append(p.cumulative, p.total)
	}
	return p
}

func (p classPicker) pick(rng *rand.Rand) Target {
	if len(p.targets) == 1 {
		return p.targets[0]
	}
	n := rng.Intn(p.total)
	for i, bound := range p.cumulative {
		if n < bound {
			return p.targets[i]
		}
	}
	return p.targets[len(p.targets)-1]
}

// thinkTime draws a uniform pause in [min, max].
func thinkTime(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// rampOffset spreads virtual user starts evenly: user i of n starts at
// rampUp*i/n after the common start.
func rampOffset(rampUp time.Duration, index, total int) time.Duration {
	if rampUp <= 0 || total <= 0 || index <= 0 {
		return 0
	}
	return time.Duration(int64(rampUp) * int64(index) / int64(total))
}

// sleepUntil waits for the instant or the context, reporting whether the full
// wait elapsed.
func sleepUntil(ctx context.Context, at time.Time) bool {
	return sleep(ctx, time.Until(at))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
