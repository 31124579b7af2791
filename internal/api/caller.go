package api

import (
	"context"
	"net/http"
)

// UserHeader carries the calling user's identity on user routes.
const UserHeader = "X-User-ID"

type callerKey struct{}

// requireUser rejects requests without a caller identity and stores it in the context.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, user)))
	})
}

func callerFrom(ctx context.Context) string {
	user, _ := ctx.Value(callerKey{}).(string)
	return user
}
