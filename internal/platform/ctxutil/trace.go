package ctxutil

import (
	"context"
	"strings"
)

type traceDataKey struct{}

// TraceData identifies one logical request. CorrelationID survives fan-out to
// concurrent workers and is echoed back to callers.
type TraceData struct {
	TraceID       string
	RequestID     string
	CorrelationID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// WithCorrelationID returns a context whose TraceData carries id, copying any
// trace/request ids already present so parents are never mutated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	next := &TraceData{CorrelationID: strings.TrimSpace(id)}
	if td := GetTraceData(ctx); td != nil {
		next.TraceID = td.TraceID
		next.RequestID = td.RequestID
	}
	return WithTraceData(ctx, next)
}

func CorrelationID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil {
		return td.CorrelationID
	}
	return ""
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
