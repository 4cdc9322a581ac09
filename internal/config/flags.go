package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "throttlebench",
		Short:         "Measure throughput, latency and rate limiting of an HTTP service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Targets
	flags.String("light-url", "", "URL for light requests")
	flags.String("heavy-url", "", "URL for heavy requests")
	flags.String("method", DefaultMethod, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form (repeatable)")
	flags.String("user-header", DefaultUserHeader, "Header carrying the synthetic user id")
	flags.String("user-query-param", "", "Also send the synthetic user id as this query parameter")

	// Load shape
	flags.IntP("concurrency", "c", DefaultConcurrency, "Number of virtual users")
	flags.DurationP("duration", "d", DefaultDuration, "How long to generate traffic (e.g. 30s, 1m)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Duration("think-time-min", DefaultThinkTimeMin, "Lower bound of the pause between requests of one virtual user")
	flags.Duration("think-time-max", DefaultThinkTimeMax, "Upper bound of the pause between requests of one virtual user")
	flags.Duration("ramp-up", 0, "Spread virtual user start over this window (0 starts all at once)")
	flags.Int("light-ratio", DefaultLightRatio, "Percentage of light requests when both classes are configured")
	flags.IntP("workers", "w", 0, "Execution units hosting virtual users (0 uses GOMAXPROCS)")
	flags.Float64P("rate", "r", 0, "Requests per second cap across the run (0 means unlimited)")
	flags.Int64("seed", 0, "Seed for class mix and think time (0 picks a random seed)")

	// Run lifecycle
	flags.Duration("sample-interval", DefaultSampleInterval, "Resource sampling interval")
	flags.Duration("drain-grace", DefaultDrainGrace, "Extra time after duration+timeout before in-flight requests are abandoned")
	flags.Int("max-restarts", DefaultMaxRestarts, "Relaunches allowed per execution unit after a crash")
	flags.String("health-url", "", "Liveness URL probed before traffic (defaults to the class URLs)")
	flags.Duration("health-timeout", DefaultHealthTimeout, "Health check timeout")
	flags.Bool("skip-health-check", false, "Start traffic without probing the target")

	// Output
	flags.String("label", DefaultLabel, "Run label used in the result document and file name")
	flags.StringP("output", "o", "", "Result document path (.json, .yaml, .yml) or an existing directory")
	flags.Bool("json-output", false, "Print the result document as JSON to stdout instead of the summary")
	flags.Bool("dashboard", false, "Show a live terminal dashboard instead of the progress line (press q to stop early)")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", DefaultLogFormat, "Log format: console or json")
	flags.Bool("log-errors", false, "Log each failed request at debug level")
	flags.StringSlice("threshold", nil, "Pass/fail assertion (repeatable, e.g. 'latency:p99 < 250')")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests traced")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"light-url", &cfg.LightURL},
		{"heavy-url", &cfg.HeavyURL},
		{"method", &cfg.Method},
		{"user-header", &cfg.UserHeader},
		{"user-query-param", &cfg.UserQueryParam},
		{"health-url", &cfg.HealthURL},
		{"label", &cfg.Label},
		{"output", &cfg.Output},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"timeout", &cfg.Timeout},
		{"think-time-min", &cfg.ThinkTimeMin},
		{"think-time-max", &cfg.ThinkTimeMax},
		{"ramp-up", &cfg.RampUp},
		{"sample-interval", &cfg.SampleInterval},
		{"drain-grace", &cfg.DrainGrace},
		{"health-timeout", &cfg.HealthTimeout},
	}
	for _, f := range durations {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetDuration(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"concurrency", &cfg.Concurrency},
		{"light-ratio", &cfg.LightRatio},
		{"workers", &cfg.Workers},
		{"max-restarts", &cfg.MaxRestarts},
	}
	for _, f := range ints {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"skip-health-check", &cfg.SkipHealthCheck},
		{"json-output", &cfg.JSONOutput},
		{"dashboard", &cfg.Dashboard},
		{"log-errors", &cfg.LogErrors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
	}
	for _, f := range bools {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
