package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-order-core/internal/orders"
)

// Set by the upstream authentication gate. This service trusts them as-is.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserAdmin = "X-User-Admin"
)

type callerKey struct{}

// RequireCaller rejects requests without an authenticated user id.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Kind: "UNAUTHENTICATED", Detail: "missing " + HeaderUserID})
			return
		}
		admin, _ := strconv.ParseBool(r.Header.Get(HeaderUserAdmin))
		ctx := context.WithValue(r.Context(), callerKey{}, orders.Caller{UserID: id, IsAdmin: admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CallerFrom(ctx context.Context) (orders.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(orders.Caller)
	return c, ok
}
