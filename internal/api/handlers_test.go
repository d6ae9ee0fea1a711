package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
)

func TestAnalyticsPinsDistrict(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/total-births", nil), "dee", "district_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
	assert.Equal(t, []reportCall{{name: "total-births", district: "d1"}}, g.reports.calls)
}

func TestAnalyticsNationalAdminChoosesDistrict(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/upcoming-appointments?district=d7", nil), "nat", "national_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []reportCall{{name: "upcoming-appointments", district: "d7"}}, g.reports.calls)
}

func TestAnalyticsErrors(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		user           string
		roles          []string
		reportErr      error
		expectedStatus int
	}{
		{name: "anonymous is redirected", path: "/api/active-pregnancies", expectedStatus: http.StatusFound},
		{name: "missing capability", path: "/api/active-pregnancies", user: "chw", roles: []string{"data_entry"}, expectedStatus: http.StatusForbidden},
		{name: "other district", path: "/api/active-pregnancies?district=d9", user: "dee", roles: []string{"district_admin"}, expectedStatus: http.StatusForbidden},
		{name: "backend failure", path: "/api/missed-appointments", user: "dee", roles: []string{"district_admin"}, reportErr: apierr.Upstream("search", errors.New("index down")), expectedStatus: http.StatusInternalServerError},
		{name: "invalid window", path: "/api/upcoming-due-dates", user: "dee", roles: []string{"district_admin"}, reportErr: apierr.Validation("invalid window"), expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)
			g.reports.err = tt.reportErr

			rec := g.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil), tt.user, tt.roles...)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestAnalyticsUpstreamErrorBody(t *testing.T) {
	g := newTestGateway(t)
	g.reports.err = apierr.Upstream("search", errors.New("index down"))

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/total-births", nil), "dee", "district_admin")

	assert.Equal(t, "Server error: search: index down", rec.Body.String())
}

func TestUnknownReportIsProxied(t *testing.T) {
	g := newTestGateway(t)

	g.do(t, httptest.NewRequest(http.MethodGet, "/api/high-risk", nil), "dee", "district_admin")

	assert.Empty(t, g.reports.calls)
	assert.Equal(t, []string{"GET /api/high-risk"}, g.backend.Requests())
}

func TestExport(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/export/messages/P?format=json&district=d1", nil), "dee", "district_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=messages-202403151030.json", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,from\n1,+123\n", rec.Body.String())

	require.Len(t, g.store.gets, 1)
	assert.Equal(t, "medic/_design/medic/_rewrite/export_messages", g.store.gets[0].resource)
	assert.Equal(t, "P", g.store.gets[0].query.Get("form"))
	assert.Equal(t, "d1", g.store.gets[0].query.Get("district"))
	assert.Equal(t, "json", g.store.gets[0].query.Get("format"))
}

func TestExportDefaultsToCSV(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, appRoot+"/export/messages?format=pdf", nil), "nat", "national_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=messages-202403151030.csv", rec.Header().Get("Content-Disposition"))
	require.Len(t, g.store.gets, 1)
	assert.False(t, g.store.gets[0].query.Has("district"))
}

func TestExportPermissions(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/export/audit", nil), "dee", "district_admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/export/audit", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, basicRealm, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "not logged in", rec.Body.String())

	assert.Empty(t, g.store.gets)
}

func TestExportPermission(t *testing.T) {
	tests := map[string]string{
		"audit":    auth.CanExportAudit,
		"feedback": auth.CanExportFeedback,
		"contacts": auth.CanExportContacts,
		"logs":     auth.CanExportServerLogs,
		"messages": auth.CanExportMessages,
		"forms":    auth.CanExportMessages,
	}
	for exportType, expected := range tests {
		assert.Equal(t, expected, exportPermission(exportType), exportType)
	}
}

func TestFTIRestrictsToDistrict(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fti/data_records?q=form:R&limit=10&include_docs=true", nil), "dee", "district_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows":[{"id":"a"}],"total_rows":1}`, rec.Body.String())
	require.Len(t, g.store.searches, 1)
	call := g.store.searches[0]
	assert.Equal(t, "data_records", call.index)
	assert.Equal(t, `(form:R) AND district:"d1"`, call.opts.Q)
	assert.Equal(t, 10, call.opts.Limit)
	assert.True(t, call.opts.IncludeDocs)
}

func TestFTIRejectsBadParameters(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fti/data_records?limit=lots", nil), "dee", "district_admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/fti/"+url.PathEscape("x y"), nil), "dee", "district_admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, g.store.searches)
}

func TestScopeQuery(t *testing.T) {
	tests := []struct {
		name          string
		q             string
		district      string
		allocatedOnly bool
		expected      string
		wantErr       bool
	}{
		{name: "unrestricted", q: "form:R", expected: "form:R"},
		{name: "district", q: "form:R", district: "d1", expected: `(form:R) AND district:"d1"`},
		{name: "district wins over allocated", q: "form:R", district: "d1", allocatedOnly: true, expected: `(form:R) AND district:"d1"`},
		{name: "allocated only", q: "form:R OR form:P", allocatedOnly: true, expected: "(form:R OR form:P) AND district:[* TO *]"},
		{name: "empty query", district: "d1", expected: `district:"d1"`},
		{name: "injected district", q: "x", district: `d1" OR district:"d2`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := scopeQuery(tt.q, tt.district, tt.allocatedOnly)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}

func TestCreateRecord(t *testing.T) {
	g := newTestGateway(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader("message=hi&from=1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := g.do(t, r, "gw", "gateway")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"id":"5"}`, rec.Body.String())
	assert.Equal(t, []recordCall{{contentType: "application/x-www-form-urlencoded", body: "message=hi&from=1"}}, g.records.calls)
}

func TestCreateRecordErrors(t *testing.T) {
	g := newTestGateway(t)
	g.records.err = apierr.Validation("Missing required field: from")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader("message=hi"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := g.do(t, r, "gw", "gateway")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: from", rec.Body.String())

	rec = g.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader("{}")), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, basicRealm, rec.Header().Get("WWW-Authenticate"))

	rec = g.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader("{}")), "chw", "data_entry")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Len(t, g.records.calls, 1)
}
