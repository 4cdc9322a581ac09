package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/torosent/throttlebench/internal/engine"
	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/threshold"
)

// Palette colors the console summary.
type Palette struct {
	Title *color.Color
	Good  *color.Color
	Warn  *color.Color
	Bad   *color.Color
	Dim   *color.Color
}

// NewPalette returns a palette; a disabled palette prints plain text.
func NewPalette(enabled bool) Palette {
	p := Palette{
		Title: color.New(color.FgCyan, color.Bold),
		Good:  color.New(color.FgGreen),
		Warn:  color.New(color.FgYellow),
		Bad:   color.New(color.FgRed, color.Bold),
		Dim:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.Title, p.Good, p.Warn, p.Bad, p.Dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, result engine.Result, thresholds []threshold.Result, p Palette) {
	r := result.Report
	c := r.Counts

	p.Title.Fprintln(w, "\n--- Benchmark Results ---")
	fmt.Fprintf(w, "Run:               %s (%s)\n", result.RunID, result.Label)
	fmt.Fprintf(w, "Virtual Users:     %d of %d", r.ActiveVUs, r.RequestedVUs)
	if r.FailedStartups > 0 {
		p.Warn.Fprintf(w, " (%d units failed to start)", r.FailedStartups)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Duration:          %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests:    %d\n", c.Total)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", r.RequestsPerSec)
	p.Good.Fprintf(w, "Successful:        %d (%.2f%%)\n", c.Success, r.SuccessRate)
	rateLimited := p.Good
	if c.RateLimited > 0 {
		rateLimited = p.Warn
	}
	rateLimited.Fprintf(w, "Rate Limited:      %d (%.2f%%)\n", c.RateLimited, r.RateLimitedRate)
	failed := p.Good
	if c.Failed() > 0 {
		failed = p.Bad
	}
	failed.Fprintf(w, "Failed:            %d (%.2f%%)\n", c.Failed(), r.ErrorRate)
	if c.Failed() > 0 {
		p.Dim.Fprintf(w, "  client=%d server=%d network=%d\n", c.ClientError, c.ServerError, c.NetworkError)
	}

	fmt.Fprintln(w, "\nLatency:")
	writeLatency(w, r.Latency, "  ")

	if len(r.Classes) > 1 {
		fmt.Fprintln(w, "\nClass Breakdown:")
		for _, class := range []metrics.Class{metrics.ClassLight, metrics.ClassHeavy} {
			cr, ok := r.Classes[class]
			if !ok {
				continue
			}
			share := 0.0
			if c.Total > 0 {
				share = float64(cr.Counts.Total) / float64(c.Total) * 100
			}
			fmt.Fprintf(w, "  - %s: total=%d (%.1f%%), success=%.1f%%, rate_limited=%.1f%%, rps=%.2f, p99=%s\n",
				class, cr.Counts.Total, share, cr.SuccessRate, cr.RateLimitRate, cr.RequestsPerSec, cr.Latency.P99)
		}
	}

	if rows := metrics.SortStatusCodes(r.StatusCodes); len(rows) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range rows {
			label := fmt.Sprintf("%d", row.Code)
			if row.Code == 0 {
				label = "none"
			}
			fmt.Fprintf(w, "  %-5s %d\n", label, row.Count)
		}
	}

	if rows := metrics.SortReasons(r.NetworkErrors); len(rows) > 0 {
		fmt.Fprintln(w, "\nNetwork Errors:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyReason(row.Reason), row.Count)
		}
	}

	res := result.Resources
	fmt.Fprintln(w, "\nResources:")
	if res.Samples == 0 {
		p.Dim.Fprintln(w, "  no samples")
	} else {
		fmt.Fprintf(w, "  CPU:             avg %.1f%%, max %.1f%%\n", res.CPU.Average, res.CPU.Max)
		fmt.Fprintf(w, "  Memory:          avg %.1f MB, max %.1f MB\n", res.Memory.Average/bytesPerMB, res.Memory.Max/bytesPerMB)
		fmt.Fprintf(w, "  Heap:            avg %.1f MB, max %.1f MB\n", res.Heap.Average/bytesPerMB, res.Heap.Max/bytesPerMB)
		if res.Skipped > 0 {
			p.Warn.Fprintf(w, "  Skipped samples: %d\n", res.Skipped)
		}
	}

	if r.Restarts > 0 || r.Abandoned > 0 {
		fmt.Fprintln(w)
		p.Warn.Fprintf(w, "Restarts: %d, Abandoned in-flight requests: %d\n", r.Restarts, r.Abandoned)
	}

	if len(thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, t := range thresholds {
			if t.Pass {
				p.Good.Fprintf(w, "  %s\n", t.Message)
			} else {
				p.Bad.Fprintf(w, "  %s\n", t.Message)
			}
		}
	}
}

// PrintJSONReport writes the document as indented JSON.
func PrintJSONReport(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeLatency(w io.Writer, l metrics.LatencyStats, indent string) {
	rows := []struct {
		name string
		d    time.Duration
	}{
		{"Min", l.Min},
		{"Mean", l.Mean},
		{"P50", l.P50},
		{"P75", l.P75},
		{"P90", l.P90},
		{"P95", l.P95},
		{"P99", l.P99},
		{"Max", l.Max},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%-17s%s\n", indent, row.name+":", row.d)
	}
}
