package middlewares

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/order-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

// inFlightTTL bounds how long a crashed request can block its key.
const inFlightTTL = 30 * time.Second

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored response when a caller retries a request
// with the same X-Idempotency-Key. Keys are scoped per user, method and
// path, so one key reused on another route runs that route. A retry that
// arrives while the first request is still running gets 409. Responses with
// a 5xx status are not stored so the caller can retry them. Requests without
// the header pass through untouched.
func Idempotency(c cache.Cache, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(constants.HeaderXIdempotencyKey)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			scope := idempotencyScope(r, key)
			responseKey := c.GenerateKey("response", scope)
			lockKey := c.GenerateKey("inflight", scope)

			if raw, ok, err := c.Get(ctx, responseKey); err != nil {
				logger.WarnContext(ctx, "idempotency lookup failed, serving request", "error", err)
				next.ServeHTTP(w, r)
				return
			} else if ok {
				var stored storedResponse
				if err := json.Unmarshal(raw, &stored); err == nil {
					logger.InfoContext(ctx, "replaying idempotent response", "idempotency_key", key, "status", stored.Status)
					w.Header().Set(constants.HeaderIdempotentReplay, "true")
					if stored.ContentType != "" {
						w.Header().Set("Content-Type", stored.ContentType)
					}
					w.WriteHeader(stored.Status)
					_, _ = w.Write(stored.Body)
					return
				}
			}

			acquired, err := c.SetNX(ctx, lockKey, []byte("1"), inFlightTTL)
			if err != nil {
				logger.WarnContext(ctx, "idempotency lock failed, serving request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "request_in_progress",
					"message": "a request with this idempotency key is still being processed",
				})
				return
			}
			// The caller may hang up; unlock and store regardless.
			storeCtx := context.WithoutCancel(ctx)
			defer func() {
				if err := c.Delete(storeCtx, lockKey); err != nil {
					logger.WarnContext(ctx, "idempotency unlock failed", "error", err)
				}
			}()

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			raw, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			})
			if err == nil {
				err = c.Set(storeCtx, responseKey, raw, ttl)
			}
			if err != nil {
				logger.WarnContext(ctx, "idempotency store failed", "error", err)
			}
		})
	}
}

func idempotencyScope(r *http.Request, key string) string {
	user := ""
	if req, ok := RequesterFrom(r.Context()); ok {
		user = req.UserID
	}
	return user + ":" + r.Method + ":" + r.URL.Path + ":" + key
}
