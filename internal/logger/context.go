package logger

import "context"

// ctxKey is private so other packages cannot collide with our context values.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	toolKey
)

// WithRequestID stores the HTTP request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from the context, "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTool stores the name of the tool a request originated from, so service
// log lines can attribute work to the tool call that caused it.
func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolKey, name)
}

// Tool returns the originating tool name from the context, "" when unset.
func Tool(ctx context.Context) string {
	name, _ := ctx.Value(toolKey).(string)
	return name
}
