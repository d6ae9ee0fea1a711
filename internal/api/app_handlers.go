package api

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/login"
)

// rootHandler lets store clients through and sends browsers to the app
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "application/json" {
		s.deps.Proxy.ServeHTTP(w, r)
		return
	}
	http.Redirect(w, r, s.appPrefix, http.StatusFound)
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	redirect := login.SafePath(s.opts.DB, s.opts.DDoc, r.URL.Query().Get("redirect"))

	if _, err := s.deps.Auth.UserContext(r); err == nil {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	login.Render(w, http.StatusOK, login.Page{
		Action:   s.pathPrefix + "login",
		Redirect: redirect,
	})
}

type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

// loginHandler checks the credentials with the store and relays its session
// cookie. JSON clients also get a bearer token for the gateway endpoints and
// the target url back, form posts are redirected to it.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	isJSON := mediaType == "application/json"

	var creds credentials
	if isJSON {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&creds); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid login request"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeText(w, http.StatusBadRequest, "Invalid login request")
			return
		}
		creds = credentials{
			Name:     r.PostForm.Get("name"),
			Password: r.PostForm.Get("password"),
			Next:     r.PostForm.Get("next"),
		}
	}
	target := login.SafePath(s.opts.DB, s.opts.DDoc, creds.Next)

	session, err := s.deps.Store.Session(r.Context(), creds.Name, creds.Password)
	if err != nil {
		if apierr.Status(err) != http.StatusUnauthorized {
			serverError(w, r, err)
			return
		}
		log.Warn().
			Str("user", creds.Name).
			Str("remote_addr", r.RemoteAddr).
			Msg("Login failed")
		if isJSON {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		login.Render(w, http.StatusUnauthorized, login.Page{
			Action:   s.pathPrefix + "login",
			Redirect: target,
			Error:    err.Error(),
		})
		return
	}

	// the store's own cookie, so proxied requests carry a session it accepts
	cookie := *session.Cookie
	cookie.Path = "/"
	cookie.Domain = ""
	cookie.HttpOnly = true
	cookie.Secure = cookie.Secure || s.opts.SecureCookies
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, &cookie)

	log.Info().
		Str("user", session.Name).
		Msg("User logged in")

	if isJSON {
		token, err := s.deps.Auth.IssueToken(session.Name, session.Roles, s.opts.SessionTTL)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "url": target, "token": token})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) setupPollHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":   true,
		"handler": "medicapi",
		"version": s.opts.Version,
		"detail":  "All required services are running normally",
	})
}

func setupUnavailableHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(w, status, "Setup services are not currently available")
	}
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
}
