package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestRPCAttributes(t *testing.T) {
	attrs := RPCAttributes("query", 7)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", "query"),
		attribute.Int64("rpc.jsonrpc.request_id", 7),
	}, attrs)

	assert.Len(t, RPCAttributes("", 0), 1)
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	assert.NotPanics(t, func() {
		EndSpan(span, errors.New("failed"))
	})
}
