package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts an access token from the Authorization header, falling back to
// the named cookie.
func TokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			return "", ErrInvalidToken
		}
		return strings.TrimSpace(header[len("Bearer "):]), nil
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", ErrMissingToken
	}
	return cookie.Value, nil
}
