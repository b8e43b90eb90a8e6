package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"resumatch.org/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth guards a route behind an access token presented as an
// Authorization bearer. The refresh route is deliberately not wrapped: its
// handler reads the refresh cookie itself so that an expired-but-valid token
// still reaches the session teardown.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, err.Error(), "")
			return
		}

		principal, err := a.svc.Authenticate(r.Context(), token, identity.TokenAccess)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthorized) {
				writeFailure(w, http.StatusUnauthorized, "Unauthorized", "")
			} else {
				writeFailure(w, http.StatusInternalServerError, "Authentication error", "")
			}
			return
		}

		ctx := identity.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
