package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configLoadCounter metric.Int64Counter
)

// recordConfigLoad counts one Load attempt. The global meter is a no-op until the
// observability runtime installs a provider, so early loads are silently dropped.
func recordConfigLoad(ctx context.Context, env string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("follower-tracker").Int64Counter("config.load.events")
		if cerr == nil {
			configLoadCounter = counter
		}
	})
	if configLoadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	configLoadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("env", normalizeEnv(env)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
		attribute.Int("problems", countProblems(err)),
	))
}

func normalizeEnv(env string) string {
	v := strings.TrimSpace(strings.ToLower(env))
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "read config file:"):
		return "file"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}

// countProblems reports how many independent problems err carries; Validate joins them.
func countProblems(err error) int {
	if err == nil {
		return 0
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return len(joined.Unwrap())
	}
	return 1
}
