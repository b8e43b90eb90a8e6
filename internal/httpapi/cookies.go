package httpapi

import (
	"net/http"
	"time"
)

// Auth cookies cross site boundaries (the frontend lives on another origin),
// so SameSite=None with Secure is required; Partitioned keeps them working
// under third-party cookie phase-out. Secure is relaxed only for plain-HTTP
// local development.
func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteNoneMode,
	}
	setPartitioned(c, a.secureCookies)
	http.SetCookie(w, c)
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	c := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteNoneMode,
	}
	setPartitioned(c, a.secureCookies)
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
