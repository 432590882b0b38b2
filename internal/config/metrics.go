package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	configMetricsOnce sync.Once
	configCounter     metric.Int64Counter
)

func recordConfigValidationEvent(ctx context.Context, profile, outcome, errorClass string) {
	configMetricsOnce.Do(func() {
		counter, err := otel.Meter("credential-session-service").Int64Counter(
			"config.validation.events",
			metric.WithDescription("Configuration load outcomes by profile and error class"),
		)
		if err == nil {
			configCounter = counter
		}
	})
	if configCounter == nil {
		return
	}
	configCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", errorClass),
	))
}

// normalizeConfigProfile keeps the profile attribute to the known
// environments so a typo in APP_ENV cannot mint new series.
func normalizeConfigProfile(profile string) string {
	switch v := strings.TrimSpace(strings.ToLower(profile)); v {
	case "":
		return "unknown"
	case EnvDevelopment, EnvProduction, EnvTest:
		return v
	default:
		return "other"
	}
}

// classifyConfigLoadError buckets load failures. Signing secret and bcrypt
// cost problems get their own class; they are the ones that weaken the
// credential guarantees rather than just failing startup.
func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.TrimSpace(err.Error())
	switch {
	case strings.Contains(msg, "JWT_ACCESS_SECRET"), strings.Contains(msg, "PASSWORD_BCRYPT_COST"):
		return "credential_policy"
	case strings.Contains(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "parse "), strings.Contains(msg, "\nparse "):
		return "parse"
	default:
		return "load"
	}
}
