package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"stealthcompany.com/medicapi/internal/analytics"
	"stealthcompany.com/medicapi/internal/metrics"
)

// Router configures and returns the HTTP router. Routes are matched in order.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(metrics.MetricsMiddleware)
	r.Use(requestLogger)

	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)

	// Login
	r.HandleFunc(s.pathPrefix+"login", s.loginPageHandler).Methods(http.MethodGet)
	r.HandleFunc(s.pathPrefix+"login", s.loginHandler).Methods(http.MethodPost)

	// Not audited
	r.PathPrefix(s.appPrefix + "update_settings/").Handler(s.deps.Proxy)
	r.Handle(s.pathPrefix+"_revs_diff", s.deps.Proxy)
	r.PathPrefix(s.pathPrefix + "_local/").Handler(s.deps.Proxy)

	// Replication
	r.HandleFunc(s.pathPrefix+"_changes", s.changesHandler).Methods(http.MethodGet)

	// Setup and info
	r.HandleFunc("/setup/poll", s.setupPollHandler).Methods(http.MethodGet)
	r.HandleFunc("/setup", setupUnavailableHandler(http.StatusServiceUnavailable))
	r.HandleFunc("/setup/password", setupUnavailableHandler(http.StatusServiceUnavailable))
	r.HandleFunc("/setup/finish", setupUnavailableHandler(http.StatusOK))
	r.HandleFunc("/api/info", s.infoHandler).Methods(http.MethodGet)

	// Analytics
	reports := strings.Join(analytics.ReportNames(), "|")
	r.HandleFunc("/api/{report:"+reports+"}", s.analyticsHandler).Methods(http.MethodGet)

	// Export
	r.HandleFunc("/api/v1/export/{type}", s.exportHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/export/{type}/{form}", s.exportHandler).Methods(http.MethodGet)
	r.HandleFunc(s.appPrefix+"export/{type}", s.exportHandler).Methods(http.MethodGet)
	r.HandleFunc(s.appPrefix+"export/{type}/{form}", s.exportHandler).Methods(http.MethodGet)

	// Data records
	r.HandleFunc("/api/v1/fti/{view}", s.ftiHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/records", s.createRecordHandler).Methods(http.MethodPost)

	// Prometheus metrics endpoint
	r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)

	// Every other write to the database is audited
	r.PathPrefix(s.pathPrefix).Methods(http.MethodPut, http.MethodPost, http.MethodDelete).HandlerFunc(s.auditHandler)

	r.PathPrefix("/").Handler(s.deps.Proxy)

	return r
}
