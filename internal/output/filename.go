package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/torosent/throttlebench/internal/config"
)

// DefaultFileName follows the <label>_<class>_<n>c_<s>s.json convention the
// report generator parses.
func DefaultFileName(label, class string, concurrency int, duration time.Duration) string {
	seconds := int(math.Round(duration.Seconds()))
	return fmt.Sprintf("%s_%s_%dc_%ds.json", label, class, concurrency, seconds)
}

// ResolvePath turns the configured output into a file path. An empty output
// disables the document; a directory (existing, or written with a trailing
// separator) receives the default file name.
func ResolvePath(cfg config.Config) string {
	out := strings.TrimSpace(cfg.Output)
	if out == "" {
		return ""
	}
	name := DefaultFileName(cfg.Label, cfg.ClassLabel(), cfg.Concurrency, cfg.Duration)
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(filepath.Separator)) {
		return filepath.Join(out, name)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}
