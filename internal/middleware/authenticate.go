package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/campusnet/backend/internal/auth"
	"github.com/campusnet/backend/internal/logging"
)

// TokenVerifier resolves an access token to the user it was issued for.
type TokenVerifier interface {
	Verify(accessToken string) (string, error)
}

// AccessTokenParam is the query parameter accepted in place of the Authorization header, for
// clients such as browsers opening websockets that cannot set headers.
const AccessTokenParam = "access_token"

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessTokenParam))
}

// Authenticate rejects requests without a valid access token and stores the caller's user id in
// the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, r, "missing access token")
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(ctx).Warn("access token rejected", slog.Any("error", err))
				unauthorized(w, r, "invalid access token")
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.With(ctx, slog.String("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="campusnet"`)
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logging.FromContext(r.Context()).Error("encode response body", "error", err)
	}
}
