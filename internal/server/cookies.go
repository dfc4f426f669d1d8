package server

import (
	"net/http"
)

// CookieName is the name of the page-session cookie
const CookieName = "seiko_session"

func sessionCookie(r *http.Request, sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
}

// SetSessionCookie sets an HTTP-only browser-session cookie (no Max-Age), so
// closing the browser forgets the page session.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, sessionCookie(r, sessionID))
}

// ClearSessionCookie tells the browser to drop the page-session cookie.
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	c := sessionCookie(r, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// SessionFromCookie returns the page-session id carried by the cookie, or ""
// when the browser sent none.
func SessionFromCookie(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
