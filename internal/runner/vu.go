package runner

import (
	"math/rand"

	"github.com/torosent/throttlebench/internal/httpclient"
	"github.com/torosent/throttlebench/internal/metrics"
)

// VirtualUser is one simulated client. Its identity survives relaunches so
// the target keeps seeing the same user.
type VirtualUser struct {
	Index  int
	UserID string

	rng    *rand.Rand
	ramped bool
}

// loop issues requests until the stop signal fires. The stop signal is
// checked before every request; a request already in flight runs on the hard
// context and its outcome is dropped when that limit expires first.
func (v *VirtualUser) loop(u *unit, s *schedule, out chan<- metrics.Outcome) {
	if !v.ramped {
		offset := rampOffset(u.opt.RampUp, v.Index, u.opt.Concurrency)
		if !sleepUntil(s.stop, s.start.Add(offset)) {
			return
		}
		v.ramped = true
	}

	for {
		if s.stop.Err() != nil {
			return
		}
		if u.limiter != nil {
			if err := u.limiter.Wait(s.stop); err != nil {
				return
			}
		}
		target := u.picker.pick(v.rng)
		o := u.exec.Execute(s.hard, httpclient.Request{
			Class:  target.Class,
			URL:    target.URL,
			UserID: v.UserID,
		})
		if s.hard.Err() != nil {
			u.abandoned.Add(1)
			return
		}
		if o.Class == "" {
			o.Class = target.Class
		}
		out <- o
		if !sleep(s.stop, thinkTime(v.rng, u.opt.ThinkTimeMin, u.opt.ThinkTimeMax)) {
			return
		}
	}
}
