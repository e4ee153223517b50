package interceptors

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

// Transport decorates outbound HTTP requests with the request ID found in the
// context and the W3C trace headers of the active span, so downstream logs
// and traces can be joined with ours.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx := req.Context()
		req = req.Clone(ctx)

		if id := GetValue(ctx, constants.ContextKeyRequestID); id != "" && req.Header.Get(constants.HeaderXRequestId) == "" {
			req.Header.Set(constants.HeaderXRequestId, id)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		return next.RoundTrip(req)
	})
}

// GetValue reads a string stored under key, returning "" when absent.
func GetValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
