package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "workbench"

// StartToolSpan starts a span for one MCP tool call.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool",
		trace.WithAttributes(
			attribute.String("tool.name", tool),
		),
	)
}

// StartLSPSpan starts a span for a language server request.
func StartLSPSpan(ctx context.Context, family, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "lsp.request",
		trace.WithAttributes(
			attribute.String("lsp.family", family),
			attribute.String("lsp.method", method),
		),
	)
}

// StartCommandSpan starts a span for a sandboxed command run.
func StartCommandSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "command",
		trace.WithAttributes(
			attribute.String("command.name", command),
		),
	)
}
