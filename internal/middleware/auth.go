package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// CookieName is the session cookie set by the login handler.
const CookieName = "relaywatch_session"

// Session holds the token issued at login. A new token is generated per
// process start, so restarting the server logs everybody out.
type Session struct {
	token string
}

func NewSession() *Session {
	return &Session{token: uuid.NewString()}
}

// Cookie returns the cookie granting access for 30 days.
func (s *Session) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    s.token,
		Path:     "/",
		MaxAge:   2592000,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Session) valid(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	return err == nil && subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(s.token)) == 1
}

// AuthMiddleware lets through the login page, the login endpoint and static
// assets; every other request needs a valid session cookie.
func AuthMiddleware(session *Session, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" ||
			r.URL.Path == "/auth/login" ||
			strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		if !session.valid(r) {
			// API and websocket clients get a status code, browsers the login page.
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
