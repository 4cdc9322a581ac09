//go:build unix

package sampler

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type processReader struct{}

// NewProcessReader returns a Reader for the current process based on
// getrusage(RUSAGE_SELF).
func NewProcessReader() Reader {
	return processReader{}
}

func (processReader) Read() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{}, fmt.Errorf("getrusage: %w", err)
	}
	rss, err := residentBytes(&ru)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		User:      time.Duration(ru.Utime.Nano()),
		System:    time.Duration(ru.Stime.Nano()),
		RSSBytes:  rss,
		HeapBytes: readHeap(),
	}, nil
}
