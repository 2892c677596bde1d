package auth

import (
	"net/http"
	"strings"
	"time"
)

// CookieName carries the session token in browsers.
const CookieName = "auth-token"

// TokenFromRequest extracts a session token from the auth cookie, falling
// back to an "Authorization: Bearer" header. It returns "" when neither is present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// BearerToken returns the token of a "Bearer <token>" value, or "".
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SessionGuard resolves the caller of each request before it reaches a
// protected handler.
type SessionGuard struct {
	tokens       *TokenManager
	unauthorized http.Handler
}

// NewSessionGuard builds a guard. unauthorized renders the rejection; it
// runs instead of the protected handler.
func NewSessionGuard(tokens *TokenManager, unauthorized http.Handler) *SessionGuard {
	if unauthorized == nil {
		unauthorized = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	return &SessionGuard{tokens: tokens, unauthorized: unauthorized}
}

// Authenticate verifies the request's token and returns its principal.
func (g *SessionGuard) Authenticate(r *http.Request) (*Principal, bool) {
	tok := TokenFromRequest(r)
	if tok == "" {
		return nil, false
	}
	c, ok := g.tokens.Verify(tok)
	if !ok {
		return nil, false
	}
	return &Principal{UserID: c.UserID, Username: c.Username}, true
}

// Middleware admits only requests carrying a valid token and binds the
// principal to the request context.
func (g *SessionGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := g.Authenticate(r)
		if !ok {
			g.unauthorized.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// SetSessionCookie stores token in an HttpOnly cookie living as long as the token.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
