package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/interceptors/constants"
)

// Identity reads the caller identity the auth gateway attached and rejects
// requests without one.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(constants.HeaderXUserID))
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthenticated",
				"message": constants.HeaderXUserID + " header is required",
			})
			return
		}

		req := domain.Requester{
			UserID: userID,
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(constants.HeaderXUserRole))),
		}
		ctx := context.WithValue(r.Context(), constants.ContextKeyRequester, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequesterFrom returns the identity stored by Identity.
func RequesterFrom(ctx context.Context) (domain.Requester, bool) {
	req, ok := ctx.Value(constants.ContextKeyRequester).(domain.Requester)
	return req, ok
}
