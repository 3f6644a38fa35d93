package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "workbench"

// Metrics holds all Workbench metric instruments.
type Metrics struct {
	ToolCalls          metric.Int64Counter
	ToolErrors         metric.Int64Counter
	CommandsRun        metric.Int64Counter
	LSPRequests        metric.Int64Counter
	LSPRequestDuration metric.Float64Histogram
	DiagnosticsPushed  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("workbench.tool.calls",
		metric.WithDescription("Number of tool calls handled"))
	if err != nil {
		return nil, err
	}

	m.ToolErrors, err = meter.Int64Counter("workbench.tool.errors",
		metric.WithDescription("Number of tool calls that returned an error"))
	if err != nil {
		return nil, err
	}

	m.CommandsRun, err = meter.Int64Counter("workbench.commands.run",
		metric.WithDescription("Number of sandboxed commands executed"))
	if err != nil {
		return nil, err
	}

	m.LSPRequests, err = meter.Int64Counter("workbench.lsp.requests",
		metric.WithDescription("Number of language server requests issued"))
	if err != nil {
		return nil, err
	}

	m.LSPRequestDuration, err = meter.Float64Histogram("workbench.lsp.request_duration_seconds",
		metric.WithDescription("Language server request duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.DiagnosticsPushed, err = meter.Int64Counter("workbench.lsp.diagnostics_pushed",
		metric.WithDescription("Number of diagnostic sets pushed by language servers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
