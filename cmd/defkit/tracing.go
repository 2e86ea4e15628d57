package main

import (
	"context"

	"github.com/spf13/viper"

	"github.com/defkit/defkit/pkg/telemetry"
	"github.com/defkit/defkit/pkg/version"
)

// initTracing initializes OpenTelemetry tracing from configuration.
// Tracing is off unless tracing.enabled is set.
func initTracing(ctx context.Context) (func(context.Context) error, error) {
	cfg := telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    "defkit",
		ServiceVersion: version.Get().Version,
		SamplerType:    viper.GetString("tracing.sampler"),
		SamplerRatio:   viper.GetFloat64("tracing.ratio"),
	}
	return telemetry.InitTracer(ctx, cfg)
}
