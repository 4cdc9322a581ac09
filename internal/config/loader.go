package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config holding every default value.
func Defaults() *Config {
	return &Config{
		Method:         DefaultMethod,
		Headers:        map[string]string{},
		UserHeader:     DefaultUserHeader,
		Concurrency:    DefaultConcurrency,
		Duration:       DefaultDuration,
		Timeout:        DefaultTimeout,
		ThinkTimeMin:   DefaultThinkTimeMin,
		ThinkTimeMax:   DefaultThinkTimeMax,
		LightRatio:     DefaultLightRatio,
		SampleInterval: DefaultSampleInterval,
		DrainGrace:     DefaultDrainGrace,
		MaxRestarts:    DefaultMaxRestarts,
		HealthTimeout:  DefaultHealthTimeout,
		Label:          DefaultLabel,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.LightURL = strings.TrimSpace(cfg.LightURL)
	cfg.HeavyURL = strings.TrimSpace(cfg.HeavyURL)
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringKeys := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"light_url", "light-url", "lighturl"}, &cfg.LightURL},
		{[]string{"heavy_url", "heavy-url", "heavyurl"}, &cfg.HeavyURL},
		{[]string{"method"}, &cfg.Method},
		{[]string{"user_header", "user-header", "userheader"}, &cfg.UserHeader},
		{[]string{"user_query_param", "user-query-param", "userqueryparam"}, &cfg.UserQueryParam},
		{[]string{"health_url", "health-url", "healthurl"}, &cfg.HealthURL},
		{[]string{"label"}, &cfg.Label},
		{[]string{"output"}, &cfg.Output},
		{[]string{"log_level", "log-level", "loglevel"}, &cfg.LogLevel},
		{[]string{"log_format", "log-format", "logformat"}, &cfg.LogFormat},
	}
	for _, s := range stringKeys {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
		if val = strings.TrimSpace(val); val != "" {
			*s.dst = val
		}
	}

	durationKeys := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"think_time_min", "think-time-min", "thinktimemin"}, &cfg.ThinkTimeMin},
		{[]string{"think_time_max", "think-time-max", "thinktimemax"}, &cfg.ThinkTimeMax},
		{[]string{"ramp_up", "ramp-up", "rampup"}, &cfg.RampUp},
		{[]string{"sample_interval", "sample-interval", "sampleinterval"}, &cfg.SampleInterval},
		{[]string{"drain_grace", "drain-grace", "draingrace"}, &cfg.DrainGrace},
		{[]string{"health_timeout", "health-timeout", "healthtimeout"}, &cfg.HealthTimeout},
	}
	for _, d := range durationKeys {
		raw, ok := lookupSetting(settings, d.keys...)
		if !ok {
			continue
		}
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.keys[0], err)
		}
		*d.dst = dur
	}

	intKeys := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"concurrency"}, &cfg.Concurrency},
		{[]string{"light_ratio", "light-ratio", "lightratio"}, &cfg.LightRatio},
		{[]string{"workers"}, &cfg.Workers},
		{[]string{"max_restarts", "max-restarts", "maxrestarts"}, &cfg.MaxRestarts},
	}
	for _, i := range intKeys {
		raw, ok := lookupSetting(settings, i.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", i.keys[0], err)
		}
		*i.dst = val
	}

	boolKeys := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"skip_health_check", "skip-health-check", "skiphealthcheck"}, &cfg.SkipHealthCheck},
		{[]string{"json_output", "json-output", "jsonoutput"}, &cfg.JSONOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "log-errors", "logerrors"}, &cfg.LogErrors},
	}
	for _, b := range boolKeys {
		raw, ok := lookupSetting(settings, b.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", b.keys[0], err)
		}
		*b.dst = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "service_name", "service-name", "servicename"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sample-rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
