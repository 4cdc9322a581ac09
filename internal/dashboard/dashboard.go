// Package dashboard renders a live terminal view of a running benchmark.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/metrics"
	"github.com/torosent/throttlebench/internal/sampler"
)

const (
	refreshInterval = 500 * time.Millisecond
	historySize     = 100
)

// Source feeds the dashboard while a run is in progress.
type Source interface {
	Progress() metrics.Progress
	Resources() (sampler.Snapshot, bool)
}

// RunInfo holds the run parameters shown in the header.
type RunInfo struct {
	Label       string
	LightURL    string
	HeavyURL    string
	LightRatio  int
	Method      string
	Concurrency int
	Workers     int
	Duration    time.Duration
	Timeout     time.Duration
	Rate        float64
	ConfigFile  string
}

// InfoFromConfig picks the displayed parameters out of a configuration.
func InfoFromConfig(cfg config.Config) RunInfo {
	light, _ := cfg.Mix()
	return RunInfo{
		Label:       cfg.Label,
		LightURL:    cfg.LightURL,
		HeavyURL:    cfg.HeavyURL,
		LightRatio:  light,
		Method:      cfg.Method,
		Concurrency: cfg.Concurrency,
		Workers:     cfg.Workers,
		Duration:    cfg.Duration,
		Timeout:     cfg.Timeout,
		Rate:        cfg.Rate,
		ConfigFile:  cfg.ConfigFile,
	}
}

// reading is the cumulative count seen at one refresh.
type reading struct {
	total       int64
	rateLimited int64
	at          time.Time
}

// Dashboard renders a live terminal UI for a run.
type Dashboard struct {
	source       Source
	info         RunInfo
	shutdownFunc func()
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid          *ui.Grid
	summaryPara   *widgets.Paragraph
	elapsedGauge  *widgets.Gauge
	rpsGauge      *widgets.Gauge
	outcomesPara  *widgets.Paragraph
	latencySpark  *widgets.SparklineGroup
	resourcesPara *widgets.Paragraph

	p99History     []float64
	limitedHistory []float64
	last           reading
	peakRPS        float64
}

// New initialises the terminal and builds the widgets. shutdownFunc is called
// when the user presses q or Ctrl-C and should stop the run.
func New(source Source, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(source, info, shutdownFunc, time.Now())
	d.setupGrid()
	return d, nil
}

func newDashboard(source Source, info RunInfo, shutdownFunc func(), now time.Time) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		source:         source,
		info:           info,
		shutdownFunc:   shutdownFunc,
		ctx:            ctx,
		cancel:         cancel,
		p99History:     make([]float64, 0, historySize),
		limitedHistory: make([]float64, 0, historySize),
		last:           reading{at: now},
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = formatRunInfo(d.info)
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.elapsedGauge = widgets.NewGauge()
	d.elapsedGauge.Title = "Elapsed"
	d.elapsedGauge.BarColor = ui.ColorGreen
	d.elapsedGauge.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second (of peak)"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.outcomesPara = widgets.NewParagraph()
	d.outcomesPara.Title = "Outcomes"
	d.outcomesPara.Text = "Waiting for data..."
	d.outcomesPara.BorderStyle.Fg = ui.ColorCyan

	p99 := widgets.NewSparkline()
	p99.Title = "P99 latency (ms)"
	p99.LineColor = ui.ColorGreen
	p99.Data = []float64{0}
	limited := widgets.NewSparkline()
	limited.Title = "Rate limited (% of interval)"
	limited.LineColor = ui.ColorYellow
	limited.Data = []float64{0}
	d.latencySpark = widgets.NewSparklineGroup(p99, limited)
	d.latencySpark.Title = "Trend"
	d.latencySpark.BorderStyle.Fg = ui.ColorCyan

	d.resourcesPara = widgets.NewParagraph()
	d.resourcesPara.Title = "Process"
	d.resourcesPara.Text = formatResources(sampler.Snapshot{}, false)
	d.resourcesPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.18,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(0.5, d.elapsedGauge),
			ui.NewCol(0.5, d.rpsGauge),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.65, d.latencySpark),
			ui.NewCol(0.35, d.outcomesPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(1.0, d.resourcesPara),
		),
	)
}

// Start begins the refresh loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop ends the refresh loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case now := <-ticker.C:
			d.update(now)
			d.render()
		}
	}
}

// update refreshes the widgets from the source. Rates are computed over the
// interval since the previous refresh, not over the whole run.
func (d *Dashboard) update(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.source.Progress()
	cur := reading{total: p.Total, rateLimited: p.RateLimited, at: now}
	rps, limitedPct := intervalRates(d.last, cur)
	d.last = cur
	d.peakRPS = max(d.peakRPS, rps)

	d.p99History = pushHistory(d.p99History, float64(p.P99)/float64(time.Millisecond))
	d.limitedHistory = pushHistory(d.limitedHistory, limitedPct)
	d.latencySpark.Sparklines[0].Data = d.p99History
	d.latencySpark.Sparklines[1].Data = d.limitedHistory
	d.latencySpark.Title = fmt.Sprintf("Trend | P99 %.1fms | 429 %.1f%%", float64(p.P99)/float64(time.Millisecond), limitedPct)

	d.elapsedGauge.Percent = elapsedPercent(p.Elapsed, d.info.Duration)
	d.elapsedGauge.Label = fmt.Sprintf("%s / %s", p.Elapsed.Round(time.Second), d.info.Duration)

	d.rpsGauge.Percent = gaugePercent(rps, d.peakRPS)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS (peak %.1f)", rps, d.peakRPS)

	d.outcomesPara.Text = formatOutcomes(p)

	snap, ok := d.source.Resources()
	d.resourcesPara.Text = formatResources(snap, ok)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

func intervalRates(prev, cur reading) (rps, limitedPct float64) {
	wall := cur.at.Sub(prev.at).Seconds()
	done := cur.total - prev.total
	if wall <= 0 || done <= 0 {
		return 0, 0
	}
	limited := cur.rateLimited - prev.rateLimited
	return float64(done) / wall, float64(limited) / float64(done) * 100
}

func pushHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	return history
}

func gaugePercent(value, ceiling float64) int {
	if ceiling <= 0 || value <= 0 {
		return 0
	}
	return min(int(value/ceiling*100), 100)
}

func elapsedPercent(elapsed, total time.Duration) int {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	return min(int(elapsed*100/total), 100)
}

func share(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func formatOutcomes(p metrics.Progress) string {
	return fmt.Sprintf(
		"Total:        %d\nSuccess:      %d (%.1f%%)\nRate limited: %d (%.1f%%)\nErrors:       %d (%.1f%%)\nP99:          %.2fms\nActive units: %d",
		p.Total,
		p.Success, share(p.Success, p.Total),
		p.RateLimited, share(p.RateLimited, p.Total),
		p.Errors, share(p.Errors, p.Total),
		float64(p.P99)/float64(time.Millisecond),
		p.ActiveUnits,
	)
}

func formatResources(snap sampler.Snapshot, ok bool) string {
	if !ok {
		return "[Waiting for the first sample](fg:yellow)"
	}
	return fmt.Sprintf("CPU: %.1f%% | RSS: %.1f MB | Heap: %.1f MB",
		snap.CPUPercent,
		float64(snap.RSSBytes)/(1<<20),
		float64(snap.HeapBytes)/(1<<20),
	)
}

// formatRunInfo renders the run parameters shown in the header.
func formatRunInfo(info RunInfo) string {
	var targets []string
	if info.LightURL != "" {
		targets = append(targets, fmt.Sprintf("light %s", info.LightURL))
	}
	if info.HeavyURL != "" {
		targets = append(targets, fmt.Sprintf("heavy %s", info.HeavyURL))
	}

	var parts []string
	if info.Method != "" && info.Method != "GET" {
		parts = append(parts, fmt.Sprintf("Method: %s", info.Method))
	}
	parts = append(parts, fmt.Sprintf("VUs: %d", info.Concurrency))
	if info.Workers > 0 {
		parts = append(parts, fmt.Sprintf("Units: %d", info.Workers))
	}
	if info.LightURL != "" && info.HeavyURL != "" {
		parts = append(parts, fmt.Sprintf("Mix: %d/%d", info.LightRatio, 100-info.LightRatio))
	}
	if info.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", info.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	parts = append(parts, fmt.Sprintf("Duration: %s", info.Duration))
	if info.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", info.Timeout))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return fmt.Sprintf("[%s](fg:cyan,mod:bold) %s\n%s\nPress q to stop early",
		info.Label,
		strings.Join(targets, " | "),
		strings.Join(parts, " | "),
	)
}
