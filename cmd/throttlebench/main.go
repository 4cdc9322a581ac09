package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/throttlebench/internal/config"
	"github.com/torosent/throttlebench/internal/dashboard"
	"github.com/torosent/throttlebench/internal/engine"
	"github.com/torosent/throttlebench/internal/logging"
	"github.com/torosent/throttlebench/internal/output"
	"github.com/torosent/throttlebench/internal/threshold"
	"github.com/torosent/throttlebench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second

	exitFatal      = 1
	exitThresholds = 2
)

var errThresholdsFailed = errors.New("thresholds failed")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errThresholdsFailed) {
		return exitThresholds
	}
	return exitFatal
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if cfg.Dashboard {
		// The dashboard owns the terminal; only errors get through.
		level = "error"
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
		Output: stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	opts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Tracing.Enabled() {
		opts = append(opts, engine.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
	}
	eng, err := engine.New(*cfg, opts...)
	if err != nil {
		return err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(eng, dashboard.InfoFromConfig(*cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(eng, progressInterval, stdout)
		progress.Start()
	}
	result, err := eng.Run(ctx)
	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}
	if err != nil {
		return err
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(threshold.Input{
		Report:    result.Report,
		Resources: result.Resources,
	})
	doc := output.NewDocument(*cfg, result, results)

	if path := output.ResolvePath(*cfg); path != "" {
		if err := output.WriteFile(context.WithoutCancel(ctx), path, doc); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		logger.Info("result written", zap.String("path", path))
	}

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, doc); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, result, results, output.NewPalette(colorEnabled(stdout)))
	}

	if !threshold.Passed(results) {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return fmt.Errorf("%w: %d of %d", errThresholdsFailed, failed, len(results))
	}
	return nil
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && output.ColorEnabled(f)
}
