package api

import (
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/analytics"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
)

type exportFormat struct {
	extension   string
	contentType string
}

const defaultExportFormat = "csv"

var exportFormats = map[string]exportFormat{
	"xml":  {extension: "xml", contentType: "application/vnd.ms-excel"},
	"csv":  {extension: "csv", contentType: "text/csv"},
	"json": {extension: "json", contentType: "application/json"},
	"zip":  {extension: "zip", contentType: "application/zip"},
}

func exportPermission(exportType string) string {
	switch exportType {
	case "audit":
		return auth.CanExportAudit
	case "feedback":
		return auth.CanExportFeedback
	case "contacts":
		return auth.CanExportContacts
	case "logs":
		return auth.CanExportServerLogs
	default:
		return auth.CanExportMessages
	}
}

// exportFilename is <type>-<YYYYMMDDHHmm>.<ext>
func (s *Server) exportFilename(exportType string, format exportFormat) string {
	return exportType + "-" + s.now().Format("200601021504") + "." + format.extension
}

// exportHandler streams an export generated by the store app as an attachment
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exportType := vars["type"]
	query := r.URL.Query()

	authCtx, err := s.deps.Auth.Check(r, []string{exportPermission(exportType)}, query.Get("district"))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	if !analytics.ValidToken(exportType) {
		s.writeError(w, r, apierr.Validation("invalid export type %q", exportType), true)
		return
	}

	formatName := query.Get("format")
	format, ok := exportFormats[formatName]
	if !ok {
		formatName = defaultExportFormat
		format = exportFormats[formatName]
	}

	query.Set("format", formatName)
	if form := vars["form"]; form != "" {
		query.Set("form", form)
	}
	if authCtx.District != "" {
		query.Set("district", authCtx.District)
	} else {
		query.Del("district")
	}

	body, _, err := s.deps.Store.Get(r.Context(), path.Join(s.deps.Store.AppPath(), "export_"+exportType), query)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}

	log.Info().
		Str("type", exportType).
		Str("format", formatName).
		Str("user", authCtx.User.Name).
		Int("bytes", len(body)).
		Msg("Export served")

	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+s.exportFilename(exportType, format))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
