// Package runner drives virtual users against the target for one run.
//
// # Execution units
//
// A [Pool] splits the requested concurrency C over N execution units, where N
// defaults to GOMAXPROCS and never exceeds C. Unit sizes differ by at most one
// and always sum to C. Each unit gets its own [Executor] from the
// [ExecutorFactory]; a unit whose factory call fails is skipped and counted as
// a failed startup, and [ErrNoUnits] is returned only when no unit starts.
//
// # Timing
//
// All units wait on a release barrier so every virtual user shares one start
// instant. The stop signal fires at start+duration (or when the caller's
// context is cancelled). Requests already in flight keep running on a
// separate context that expires at
//
//	start + duration + timeout + drain grace
//
// An outcome that arrives after that limit is counted as abandoned and never
// recorded.
//
// # Virtual users
//
// Virtual user i of C starts at rampUp×i/C after the release, then loops:
// check stop, wait on the unit's rate limiter if any, pick a class by weight,
// execute, hand the outcome to the unit collector, sleep a uniform think time.
// Randomness comes from a per-user source derived from the run seed.
//
// # Crash recovery
//
// A panic inside a virtual user is recovered, logged and followed by a
// relaunch of the same identity after a short backoff, as long as the stop
// signal has not fired and the unit still has restart budget. A relaunched
// user does not repeat its ramp delay.
//
// # Usage
//
//	pool, err := runner.NewPool(runner.Options{
//		Targets:     []runner.Target{{Class: metrics.ClassLight, URL: u, Weight: 1}},
//		Concurrency: 10,
//		Duration:    30 * time.Second,
//		Timeout:     10 * time.Second,
//		NewExecutor: factory,
//	})
//	if err != nil {
//		return err
//	}
//	run, err := pool.Run(ctx)
package runner
