package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Ali-M-Jradi/albaqer-chatbot/internal/logging"
)

// Rejection reasons reported to onReject and the unauthorized metric.
const (
	authMissing = "missing"
	authInvalid = "invalid"
)

// bearerAuth guards the retrieval routes with the shared ALBAQER_API_KEY
// the shop backend presents as "Authorization: Bearer <key>". A zero key
// disables the check.
type bearerAuth struct {
	key []byte

	// onReject is called with the route and reason for every 401.
	onReject func(route, reason string)
}

func newBearerAuth(apiKey string) *bearerAuth {
	return &bearerAuth{key: []byte(apiKey), onReject: func(string, string) {}}
}

// middleware wraps next for the named route. Failures answer 401 with a
// JSON errorResponse and a WWW-Authenticate challenge. Token values are
// never logged.
func (a *bearerAuth) middleware(route string, next http.Handler) http.Handler {
	if len(a.key) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		reason := ""
		switch {
		case token == "":
			reason = authMissing
		case subtle.ConstantTimeCompare([]byte(token), a.key) != 1:
			reason = authInvalid
		}
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}

		a.onReject(route, reason)
		logging.FromContext(r.Context()).Warn("auth: request rejected",
			slog.String("route", route),
			slog.String("reason", reason),
		)
		if reason == authMissing {
			w.Header().Set("WWW-Authenticate", `Bearer realm="albaqer"`)
			writeError(w, http.StatusUnauthorized, "authorization required", nil)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="albaqer", error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, "invalid token", nil)
	})
}

// bearerToken returns the credential of a Bearer Authorization header, or
// "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, cred, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(cred)
}
