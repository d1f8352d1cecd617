package server

import (
	"net/http"

	"github.com/podded/dashgate/credential"
)

// setSessionCookie stores the backend token where the resolver's cookie tier
// finds it first.
func (svr *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     credential.CookieBackendToken,
		Value:    token,
		Path:     "/",
		MaxAge:   int(svr.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   svr.cfg.Production() || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleLogout expires every credential cookie the resolver reads. It never
// calls the upstream.
func (svr *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	names := []string{credential.CookieBackendToken, credential.CookieAccessToken, credential.CookieToken}
	names = append(names, svr.cfg.SessionCookies...)
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   svr.cfg.Production() || r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	writeJSON(w, http.StatusOK, writeAck{Success: true})
}
