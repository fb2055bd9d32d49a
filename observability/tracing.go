package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/shaharia-lab/flowplugin"

// StartSpan starts a new span with the given name and options.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return trace.SpanFromContext(ctx).TracerProvider().
		Tracer(tracerName).
		Start(ctx, name, opts...)
}

// RPCAttributes returns the span attributes describing one JSON-RPC message.
func RPCAttributes(method string, id int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("rpc.system", "jsonrpc")}
	if method != "" {
		attrs = append(attrs, attribute.String("rpc.method", method))
	}
	if id != 0 {
		attrs = append(attrs, attribute.Int64("rpc.jsonrpc.request_id", id))
	}
	return attrs
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
