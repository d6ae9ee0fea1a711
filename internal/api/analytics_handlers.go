package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/analytics"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/metrics"
	"stealthcompany.com/medicapi/internal/store"
)

func (s *Server) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	report := mux.Vars(r)["report"]

	authCtx, err := s.deps.Auth.Check(r, []string{auth.CanViewAnalytics}, r.URL.Query().Get("district"))
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	start := time.Now()
	result, err := s.deps.Reports.Run(r.Context(), report, authCtx.District)
	if err != nil {
		metrics.RecordReport(report, "failed")
		s.writeError(w, r, err, false)
		return
	}
	metrics.RecordReport(report, "success")

	log.Info().
		Str("report", report).
		Str("district", authCtx.District).
		Str("user", authCtx.User.Name).
		Dur("duration", time.Since(start)).
		Msg("Report served")

	writeJSON(w, http.StatusOK, result)
}

// ftiHandler searches a full-text index on behalf of the caller, restricted to
// their district and, without the capability, to allocated records.
func (s *Server) ftiHandler(w http.ResponseWriter, r *http.Request) {
	view := mux.Vars(r)["view"]

	authCtx, err := s.deps.Auth.Check(r, []string{auth.CanViewDataRecords}, "")
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	opts, err := searchOptions(r)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if !analytics.ValidToken(view) {
		s.writeError(w, r, apierr.Validation("invalid view %q", view), false)
		return
	}
	opts.Q, err = scopeQuery(opts.Q, authCtx.District, !authCtx.CanViewUnallocated)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	page, err := s.deps.Store.Search(r.Context(), view, opts)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func searchOptions(r *http.Request) (store.SearchOptions, error) {
	query := r.URL.Query()
	opts := store.SearchOptions{
		Q:           query.Get("q"),
		Schema:      query.Get("schema"),
		Sort:        query.Get("sort"),
		IncludeDocs: query.Get("include_docs") == "true",
	}

	var err error
	if opts.Skip, err = intParam(query.Get("skip"), "skip"); err != nil {
		return opts, err
	}
	if opts.Limit, err = intParam(query.Get("limit"), "limit"); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, apierr.Validation("invalid %s %q", name, value)
	}
	return n, nil
}

// scopeQuery appends the district restriction to q. Records without a
// district are unallocated.
func scopeQuery(q, district string, allocatedOnly bool) (string, error) {
	var clause string
	switch {
	case district != "":
		if !analytics.ValidToken(district) {
			return "", apierr.Validation("invalid district %q", district)
		}
		clause = `district:"` + district + `"`
	case allocatedOnly:
		clause = "district:[* TO *]"
	default:
		return q, nil
	}

	if q == "" {
		return clause, nil
	}
	return "(" + q + ") AND " + clause, nil
}
