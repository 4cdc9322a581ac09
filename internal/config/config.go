package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Defaults applied by the loader before file and flag values.
const (
	DefaultMethod         = "GET"
	DefaultUserHeader     = "X-User-ID"
	DefaultConcurrency    = 10
	DefaultDuration       = 30 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultThinkTimeMin   = 50 * time.Millisecond
	DefaultThinkTimeMax   = 200 * time.Millisecond
	DefaultLightRatio     = 70
	DefaultSampleInterval = time.Second
	DefaultDrainGrace     = 2 * time.Second
	DefaultMaxRestarts    = 5
	DefaultHealthTimeout  = 5 * time.Second
	DefaultLabel          = "run"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"

	highConcurrency = 2000
	highRate        = 10000
)

type Config struct {
	LightURL        string            `mapstructure:"light_url"`
	HeavyURL        string            `mapstructure:"heavy_url"`
	Method          string            `mapstructure:"method"`
	Headers         map[string]string `mapstructure:"headers"`
	UserHeader      string            `mapstructure:"user_header"`
	UserQueryParam  string            `mapstructure:"user_query_param"`
	Concurrency     int               `mapstructure:"concurrency"`
	Duration        time.Duration     `mapstructure:"duration"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	ThinkTimeMin    time.Duration     `mapstructure:"think_time_min"`
	ThinkTimeMax    time.Duration     `mapstructure:"think_time_max"`
	RampUp          time.Duration     `mapstructure:"ramp_up"`
	LightRatio      int               `mapstructure:"light_ratio"`
	Workers         int               `mapstructure:"workers"`
	Rate            float64           `mapstructure:"rate"`
	SampleInterval  time.Duration     `mapstructure:"sample_interval"`
	DrainGrace      time.Duration     `mapstructure:"drain_grace"`
	MaxRestarts     int               `mapstructure:"max_restarts"`
	HealthURL       string            `mapstructure:"health_url"`
	HealthTimeout   time.Duration     `mapstructure:"health_timeout"`
	SkipHealthCheck bool              `mapstructure:"skip_health_check"`
	Label           string            `mapstructure:"label"`
	Output          string            `mapstructure:"output"`
	JSONOutput      bool              `mapstructure:"json_output"`
	Dashboard       bool              `mapstructure:"dashboard"`
	LogLevel        string            `mapstructure:"log_level"`
	LogFormat       string            `mapstructure:"log_format"`
	LogErrors       bool              `mapstructure:"log_errors"`
	Thresholds      []string          `mapstructure:"thresholds"`
	Seed            int64             `mapstructure:"seed"`
	Tracing         TracingConfig     `mapstructure:"tracing"`
	ConfigFile      string            `mapstructure:"-"`
}

// TracingConfig configures OTLP export of one client span per request.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless explicitly set.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Mix returns the effective light/heavy weights. A class without a URL gets
// weight zero.
func (c Config) Mix() (light, heavy int) {
	hasLight := strings.TrimSpace(c.LightURL) != ""
	hasHeavy := strings.TrimSpace(c.HeavyURL) != ""
	switch {
	case hasLight && hasHeavy:
		return c.LightRatio, 100 - c.LightRatio
	case hasLight:
		return 100, 0
	case hasHeavy:
		return 0, 100
	default:
		return 0, 0
	}
}

// ClassLabel names the traffic shape for file names: "light", "heavy" or
// "mixed".
func (c Config) ClassLabel() string {
	light, heavy := c.Mix()
	switch {
	case light > 0 && heavy > 0:
		return "mixed"
	case heavy > 0:
		return "heavy"
	default:
		return "light"
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	light := strings.TrimSpace(c.LightURL)
	heavy := strings.TrimSpace(c.HeavyURL)
	if light == "" && heavy == "" {
		issues = append(issues, "at least one of light-url or heavy-url is required (use --help for usage information)")
	}
	urls := []struct{ name, raw string }{
		{"light-url", light},
		{"heavy-url", heavy},
		{"health-url", strings.TrimSpace(c.HealthURL)},
	}
	for _, u := range urls {
		if u.raw == "" {
			continue
		}
		if issue := validateURL(u.name, u.raw); issue != "" {
			issues = append(issues, issue)
		}
	}

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.ThinkTimeMin < 0 || c.ThinkTimeMax < 0 {
		issues = append(issues, "think time must be >= 0")
	}
	if c.ThinkTimeMax < c.ThinkTimeMin {
		issues = append(issues, "think-time-max must be >= think-time-min")
	}
	if c.RampUp < 0 {
		issues = append(issues, "ramp-up must be >= 0")
	}
	if c.RampUp >= c.Duration && c.RampUp > 0 {
		issues = append(issues, "ramp-up must be shorter than duration")
	}
	if c.LightRatio < 0 || c.LightRatio > 100 {
		issues = append(issues, "light-ratio must be between 0 and 100")
	}
	if light != "" && heavy != "" && (c.LightRatio == 0 || c.LightRatio == 100) {
		issues = append(issues, "light-ratio excludes a configured class; drop its URL instead")
	}
	if c.Workers < 0 {
		issues = append(issues, "workers must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.SampleInterval < 10*time.Millisecond {
		issues = append(issues, "sample-interval must be >= 10ms")
	}
	if c.DrainGrace < 0 {
		issues = append(issues, "drain-grace must be >= 0")
	}
	if c.MaxRestarts < 0 {
		issues = append(issues, "max-restarts must be >= 0")
	}
	if c.HealthTimeout <= 0 {
		issues = append(issues, "health-timeout must be > 0")
	}
	if strings.TrimSpace(c.Label) == "" {
		issues = append(issues, "label cannot be empty")
	} else if strings.ContainsAny(c.Label, `/\`) {
		issues = append(issues, "label cannot contain path separators")
	}
	if strings.TrimSpace(c.UserHeader) == "" {
		issues = append(issues, "user-header cannot be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log-format %q is not supported (use console or json)", c.LogFormat))
	}
	for key, value := range c.Headers {
		if strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("header %q contains a line break", key))
		}
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output cannot be combined")
	}
	if strings.ContainsAny(c.UserHeader, "\r\n") {
		issues = append(issues, "user-header contains a line break")
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings lists settings that are valid but worth confirming before a run
// hits a shared target.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Concurrency > highConcurrency {
		warnings = append(warnings, fmt.Sprintf("High concurrency configured (%d virtual users). Ensure you have authorization to test the target system.", c.Concurrency))
	}
	if c.Rate > highRate {
		warnings = append(warnings, fmt.Sprintf("High rate limit configured (%g RPS). Ensure you have authorization to test the target system.", c.Rate))
	}
	return warnings
}

func validateURL(name, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("%s is not a valid URL: %v", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Sprintf("%s must include a host", name)
	}
	return ""
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported (use grpc or http)", t.Protocol))
	}
	return issues
}
