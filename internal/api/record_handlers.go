package api

import (
	"io"
	"net/http"

	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
)

const maxBodyBytes = 32 << 20

func (s *Server) createRecordHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Auth.Check(r, []string{auth.CanCreateRecords}, ""); err != nil {
		s.writeError(w, r, err, true)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, apierr.Validation("Invalid request body: %v", err), true)
		return
	}

	result, err := s.deps.Records.Create(r.Context(), r.Header.Get("Content-Type"), body)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
