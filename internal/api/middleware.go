package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// requestLogger logs every request as it arrives
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Request received")
		next.ServeHTTP(w, r)
	})
}
