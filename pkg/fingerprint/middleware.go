package fingerprint

import (
	"context"
	"net/http"
)

type fingerprintContextKey struct{}

func SetFingerprintToContext(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fingerprint)
}

// GetFingerprintFromContext returns the identity stored by Middleware, or "".
func GetFingerprintFromContext(ctx context.Context) string {
	fingerprint, _ := ctx.Value(fingerprintContextKey{}).(string)
	return fingerprint
}

// Middleware resolves the visitor identity and stores it in the request
// context. Requests with no usable signals pass through without one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := FromRequest(r); err == nil {
			r = r.WithContext(SetFingerprintToContext(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
