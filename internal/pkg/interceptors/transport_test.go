package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

func TestTransport_PropagatesHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	t.Cleanup(srv.Close)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "call")
	defer span.End()
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, "req-1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := (&http.Client{Transport: Transport(nil)}).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "req-1", got.Get(constants.HeaderXRequestId))
	assert.Contains(t, got.Get("Traceparent"), span.SpanContext().TraceID().String())
	assert.Empty(t, req.Header.Get(constants.HeaderXRequestId), "caller's request is not mutated")
}

func TestGetValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), constants.ContextKeyRequestID, "id")
	assert.Equal(t, "id", GetValue(ctx, constants.ContextKeyRequestID))
	assert.Empty(t, GetValue(ctx, constants.ContextKeyIdempotencyKey))
}
