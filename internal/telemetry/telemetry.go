package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "finance-assistant"

// Instruments used across the assistant. They resolve against the global
// providers, which are no-ops until a process installs real ones.
var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)

	roundDuration, _ = meter.Float64Histogram("assistant.round.duration",
		metric.WithDescription("Duration of one message round including tool calls"),
		metric.WithUnit("s"),
	)
	toolCalls, _ = meter.Int64Counter("assistant.tool.calls",
		metric.WithDescription("Tool calls executed by the assistant"),
	)
	proposalDecisions, _ = meter.Int64Counter("assistant.proposal.decisions",
		metric.WithDescription("Proposal lifecycle transitions"),
	)
	httpRequestDuration, _ = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
)

// StartRound opens the span of one conversation round.
func StartRound(ctx context.Context, conversationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "assistant.round",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
}

// EndRound records the round duration and closes the span.
func EndRound(ctx context.Context, span trace.Span, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	roundDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
	span.End()
}

// ToolCalled counts one tool execution.
func ToolCalled(ctx context.Context, tool string, err error) {
	toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("error", err != nil),
	))
}

// ProposalDecided counts a proposal transition such as "confirmed".
func ProposalDecided(ctx context.Context, proposalType, outcome string) {
	proposalDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("proposal.type", proposalType),
		attribute.String("outcome", outcome),
	))
}

// Tracing creates a span and records the duration of each HTTP request.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", sw.status))
		if sw.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
		httpRequestDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", sw.status),
		))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
