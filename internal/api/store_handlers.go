package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/proxy"
)

// changesHandler guards change feed subscriptions. Users who may access the
// store directly are not restricted.
func (s *Server) changesHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Auth.UserContext(r)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	if s.deps.Auth.HasAllPermissions(user, auth.CanAccessDirectly) {
		s.deps.Proxy.ServeHTTP(w, r)
		return
	}

	facilityID, err := s.deps.Auth.FacilityID(r.Context(), user)
	if err != nil {
		serverError(w, r, err)
		return
	}

	scope := proxy.ReplicationScope{
		FacilityID:         facilityID,
		CanViewUnallocated: s.deps.Auth.HasPermission(user, auth.CanViewUnallocatedDataRecords),
		UnallocatedEnabled: s.opts.UnallocatedEnabled,
	}
	if err := s.deps.Guard.Validate(scope, proxy.ParseReplicationRequest(r.URL.Query())); err != nil {
		log.Warn().
			Str("user", user.Name).
			Str("remote_addr", r.RemoteAddr).
			Msg("Replication rejected")
		s.writeError(w, r, err, false)
		return
	}

	s.deps.Proxy.ServeHTTP(w, r)
}

// auditHandler sends writes through the audit proxy
func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Audit.Audit(w, r)
	switch result.Outcome {
	case proxy.Denied:
		s.notLoggedIn(w, r, false)
	case proxy.Failed:
		serverError(w, r, result.Err)
	}
}
