package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protected(session *Session) http.Handler {
	return AuthMiddleware(session, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
}

func TestAuthMiddleware(t *testing.T) {
	session := NewSession()
	h := protected(session)

	tests := []struct {
		name   string
		path   string
		cookie *http.Cookie
		want   int
	}{
		{"login page open", "/login", nil, http.StatusTeapot},
		{"static open", "/static/app.js", nil, http.StatusTeapot},
		{"api needs session", "/api/state", nil, http.StatusUnauthorized},
		{"page redirects", "/", nil, http.StatusSeeOther},
		{"forged cookie", "/api/state", &http.Cookie{Name: CookieName, Value: "true"}, http.StatusUnauthorized},
		{"valid session", "/api/state", session.Cookie(), http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestNewSession_UniqueTokens(t *testing.T) {
	assert.NotEqual(t, NewSession().Cookie().Value, NewSession().Cookie().Value)
}
