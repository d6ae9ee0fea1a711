package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/proxy"
)

const basicRealm = `Basic realm="Medic Mobile Web Services"`

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(message))
}

// writeError answers with the status of err. showPrompt is set for API
// endpoints, where missing credentials get a basic auth challenge instead of
// the login redirect.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, showPrompt bool) {
	switch status := apierr.Status(err); status {
	case http.StatusBadRequest:
		writeText(w, status, err.Error())
	case http.StatusUnauthorized:
		s.notLoggedIn(w, r, showPrompt)
	case http.StatusForbidden:
		log.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request forbidden")
		writeText(w, status, "Forbidden")
	default:
		serverError(w, r, err)
	}
}

func (s *Server) notLoggedIn(w http.ResponseWriter, r *http.Request, showPrompt bool) {
	if showPrompt {
		w.Header().Set("WWW-Authenticate", basicRealm)
		writeText(w, http.StatusUnauthorized, "not logged in")
		return
	}
	http.Redirect(w, r, proxy.LoginRedirect(s.pathPrefix, r.URL.RequestURI()), http.StatusFound)
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Server error")
	writeText(w, http.StatusInternalServerError, "Server error: "+err.Error())
}
