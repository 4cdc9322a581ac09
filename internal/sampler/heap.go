package sampler

import "runtime/metrics"

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// readHeap reports live plus not-yet-swept heap object bytes without the
// stop-the-world pause of runtime.ReadMemStats.
func readHeap() uint64 {
	samples := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(samples)
	if samples[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return samples[0].Value.Uint64()
}
