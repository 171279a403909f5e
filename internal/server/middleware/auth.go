package middleware

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/server/interceptors"
)

const bearerPrefix = "bearer "

// AccessValidator validates a bearer access token and returns its subject and org claim.
type AccessValidator interface {
	ValidateAccess(token string) (principalID, orgID string, err error)
}

// Authenticate sets user_id and org_id in the request context when the request carries a valid Bearer token.
// Requests without one pass through anonymous; authorization decides whether that is acceptable.
func Authenticate(tokens AccessValidator, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" || tokens == nil {
				next.ServeHTTP(w, r)
				return
			}
			userID, orgID, err := tokens.ValidateAccess(token)
			if err != nil {
				log.WithField("request_id", interceptors.GetRequestID(r.Context())).WithError(err).Debug("rejected bearer token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(interceptors.WithIdentity(r.Context(), userID, orgID)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
