package constants

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	HeaderXRequestId      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	// HeaderXUserID and HeaderXUserRole are attached by the upstream auth
	// gateway after it validated the caller's token.
	HeaderXUserID   = "X-User-Id"
	HeaderXUserRole = "X-User-Role"

	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyIdempotencyKey is the context key for the idempotency key.
	ContextKeyIdempotencyKey contextKey = "idempotency_key"
	// ContextKeyRequester holds the domain.Requester of an authenticated call.
	ContextKeyRequester contextKey = "requester"

	// HeaderIdempotentReplay marks a response served from the idempotency cache.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)
