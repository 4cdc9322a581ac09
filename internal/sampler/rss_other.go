//go:build unix && !linux

package sampler

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// residentBytes falls back to the peak resident set reported by getrusage.
func residentBytes(ru *unix.Rusage) (uint64, error) {
	switch runtime.GOOS {
	case "darwin", "ios":
		return uint64(ru.Maxrss), nil
	default:
		return uint64(ru.Maxrss) * 1024, nil
	}
}
