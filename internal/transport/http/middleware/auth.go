package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/mesabook/chat-service/internal/auth"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// AuthMiddleware verifies the bearer token and stores the caller identity in
// the request context.
func AuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") || len(h) <= 7 {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(strings.TrimSpace(h[7:]))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) string {
	if v := ctx.Value(ctxKeyIdentity); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
