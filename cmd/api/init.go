package main

import (
	"context"
	"errors"
	"fmt"

	"calculator-brain/internal/calculator"
	"calculator-brain/internal/config"
	"calculator-brain/internal/observability"
)

// initTelemetry installs the OTLP trace, metric and log pipelines when
// enabled, then the calculator's own instruments. The returned shutdown
// flushes every installed provider.
func initTelemetry(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	var shutdowns []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if cfg.TelemetryEnabled {
		for _, initFn := range []func(context.Context) (func(context.Context) error, error){
			observability.InitTracing,
			observability.InitMetrics,
			observability.InitLogging,
		} {
			fn, err := initFn(ctx)
			if err != nil {
				_ = shutdown(ctx)
				return nil, err
			}
			shutdowns = append(shutdowns, fn)
		}
	}

	if err := calculator.InitMetrics(); err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("initializing calculator metrics: %w", err)
	}

	return shutdown, nil
}

// newStore builds the session store with the configured operation table.
func newStore(cfg config.Config) (*calculator.Store, error) {
	ops := calculator.DefaultOperations()
	if cfg.Scientific {
		ops = calculator.ScientificOperations()
	}

	store := calculator.NewStore(ops, cfg.MaxSessions)
	if err := calculator.RegisterSessionGauge(store); err != nil {
		return nil, err
	}
	return store, nil
}
