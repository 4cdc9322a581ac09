package sampler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const statmPath = "/proc/self/statm"

// residentBytes reads the current resident set from statm. Maxrss is only a
// high-water mark, so it is used only when procfs is unavailable.
func residentBytes(ru *unix.Rusage) (uint64, error) {
	data, err := os.ReadFile(statmPath)
	if err != nil {
		return uint64(ru.Maxrss) * 1024, nil
	}
	return parseStatm(data, os.Getpagesize())
}

func parseStatm(data []byte, pageSize int) (uint64, error) {
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("statm: unexpected content %q", strings.TrimSpace(string(data)))
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("statm: resident pages: %w", err)
	}
	return pages * uint64(pageSize), nil
}
