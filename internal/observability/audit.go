package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Audit emits a security-relevant event for an HTTP request. Callers must
// never pass raw secrets as attributes.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	AuditEvent(r.Context(), event, append(base, attrs...)...)
}

func AuditEvent(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		base = append(base, "trace_id", sc.TraceID().String())
	}
	slog.InfoContext(ctx, "audit", append(base, attrs...)...)
}
