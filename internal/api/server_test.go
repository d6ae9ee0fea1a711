package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/store"
)

func TestRootRedirectsBrowsersToApp(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/", nil), "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appRoot+"/", rec.Header().Get("Location"))
	assert.Empty(t, g.backend.Requests())
}

func TestRootProxiesStoreClients(t *testing.T) {
	g := newTestGateway(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", "application/json")

	rec := g.do(t, r, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"GET /"}, g.backend.Requests())
}

func TestSetupAndInfo(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/setup/poll", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true,"handler":"medicapi","version":"1.2.3","detail":"All required services are running normally"}`, rec.Body.String())

	rec = g.do(t, httptest.NewRequest(http.MethodPost, "/setup", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = g.do(t, httptest.NewRequest(http.MethodPost, "/setup/finish", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(t, httptest.NewRequest(http.MethodGet, "/api/info", nil), "")
	assert.JSONEq(t, `{"version":"1.2.3"}`, rec.Body.String())
}

func TestCatchAllProxiesWithCookieChallenge(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/medic/some-doc?rev=2", nil), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cookie", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "from store", rec.Body.String())
	assert.Equal(t, []string{"GET /medic/some-doc?rev=2"}, g.backend.Requests())
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")

	assert.Equal(t, "# metrics", rec.Body.String())
	assert.Empty(t, g.backend.Requests())
}

func TestLoginPage(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/medic/login?redirect="+url.QueryEscape("http://evil.com/"), nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="`+appRoot+`"`)

	rec = g.do(t, httptest.NewRequest(http.MethodGet, "/medic/login?redirect="+url.QueryEscape(appRoot+"/#/reports"), nil), "dee", "district_admin")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appRoot+"/#/reports", rec.Header().Get("Location"))
}

func TestLoginFormIssuesSessionCookie(t *testing.T) {
	g := newTestGateway(t)
	form := url.Values{"name": {"dee"}, "password": {"right"}, "next": {appRoot + "/tasks"}}
	r := httptest.NewRequest(http.MethodPost, "/medic/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := g.do(t, r, "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appRoot+"/tasks", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookie, cookies[0].Name)
	assert.Equal(t, storeSession("dee"), cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	follow := httptest.NewRequest(http.MethodGet, "/", nil)
	follow.AddCookie(cookies[0])
	user, err := g.auth.UserContext(follow)
	require.NoError(t, err)
	assert.Equal(t, "dee", user.Name)
	assert.Equal(t, []string{"district_admin"}, user.Roles)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	g := newTestGateway(t)

	form := url.Values{"name": {"dee"}, "password": {"wrong"}}
	r := httptest.NewRequest(http.MethodPost, "/medic/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := g.do(t, r, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), store.ErrInvalidCredentials)
	assert.Empty(t, rec.Result().Cookies())

	r = httptest.NewRequest(http.MethodPost, "/medic/login", strings.NewReader(`{"name":"dee","password":"wrong"}`))
	r.Header.Set("Content-Type", "application/json")
	rec = g.do(t, r, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Name or password is incorrect."}`, rec.Body.String())
}

func TestLoginJSON(t *testing.T) {
	g := newTestGateway(t)
	r := httptest.NewRequest(http.MethodPost, "/medic/login", strings.NewReader(`{"name":"dee","password":"right","next":"/_utils"}`))
	r.Header.Set("Content-Type", "application/json")

	rec := g.do(t, r, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, appRoot, body.URL)
	assert.Len(t, rec.Result().Cookies(), 1)

	api := httptest.NewRequest(http.MethodGet, "/", nil)
	api.Header.Set(auth.AuthorizationHeader, auth.BearerPrefix+body.Token)
	user, err := g.auth.UserContext(api)
	require.NoError(t, err)
	assert.Equal(t, "dee", user.Name)
}

func TestLoginSessionIsAcceptedByStore(t *testing.T) {
	g := newTestGateway(t)
	g.backend.sessions = map[string]bool{storeSession("dee"): true}

	form := url.Values{"name": {"dee"}, "password": {"right"}}
	r := httptest.NewRequest(http.MethodPost, "/medic/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	login := g.do(t, r, "")
	require.Equal(t, http.StatusFound, login.Code)
	cookies := login.Result().Cookies()
	require.Len(t, cookies, 1)

	withSession := func(r *http.Request) *http.Request {
		r.AddCookie(cookies[0])
		return r
	}

	write := g.do(t, withSession(httptest.NewRequest(http.MethodPut, "/medic/doc1", strings.NewReader(`{"type":"person"}`))), "")
	assert.Equal(t, http.StatusOK, write.Code)
	require.Len(t, g.recorder.records, 1)
	assert.Equal(t, "dee", g.recorder.records[0].Identity)

	changes := g.do(t, withSession(httptest.NewRequest(http.MethodGet, "/medic/_changes?filter=medic/doc_by_place&id=f1", nil)), "")
	assert.Equal(t, http.StatusOK, changes.Code)

	page := g.do(t, withSession(httptest.NewRequest(http.MethodGet, appRoot+"/", nil)), "")
	assert.Equal(t, http.StatusOK, page.Code)

	expected := "|" + storeSession("dee")
	assert.Equal(t, []string{expected, expected, expected}, g.backend.Credentials())
}

func TestBearerTokenNeverReachesStore(t *testing.T) {
	g := newTestGateway(t)
	g.backend.sessions = map[string]bool{storeSession("dee"): true}

	rec := g.do(t, httptest.NewRequest(http.MethodPut, "/medic/doc1", strings.NewReader(`{}`)), "dee", "district_admin")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, g.recorder.records, 1)
	assert.Equal(t, []string{"|"}, g.backend.Credentials())
}

func TestUnauditedPassthroughs(t *testing.T) {
	g := newTestGateway(t)

	paths := []string{
		appRoot + "/update_settings/medic",
		"/medic/_revs_diff",
		"/medic/_local/abc",
	}
	for _, p := range paths {
		rec := g.do(t, httptest.NewRequest(http.MethodPost, p, strings.NewReader("{}")), "")
		assert.Equal(t, http.StatusOK, rec.Code, p)
	}

	assert.Len(t, g.backend.Requests(), 3)
	assert.Empty(t, g.recorder.records)
}

func TestAuditedWriteIsRecordedThenForwarded(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodPut, "/medic/abc", strings.NewReader(`{"type":"person"}`)), "dee", "district_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, g.recorder.records, 1)
	assert.Equal(t, "dee", g.recorder.records[0].Identity)
	assert.Equal(t, "/medic/abc", g.recorder.records[0].Path)
	assert.Equal(t, []string{"PUT /medic/abc"}, g.backend.Requests())
	assert.Equal(t, []string{`{"type":"person"}`}, g.backend.bodies)
}

func TestAuditedWriteWithoutSession(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, httptest.NewRequest(http.MethodDelete, "/medic/abc?rev=1", nil), "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/medic/login?redirect="+url.QueryEscape("/medic/abc?rev=1"), rec.Header().Get("Location"))
	assert.Empty(t, g.recorder.records)
	assert.Empty(t, g.backend.Requests())
}

func TestAuditedWriteWhenAuditFails(t *testing.T) {
	g := newTestGateway(t)
	g.recorder.err = errors.New("bucket unavailable")

	rec := g.do(t, httptest.NewRequest(http.MethodPost, "/medic/", strings.NewReader("{}")), "dee", "district_admin")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error: bucket unavailable", rec.Body.String())
	assert.Empty(t, g.backend.Requests())
}

func TestChanges(t *testing.T) {
	docIDs := url.QueryEscape(`["_design/medic"]`)

	tests := []struct {
		name           string
		query          string
		user           string
		roles          []string
		expectedStatus int
		forwarded      bool
	}{
		{name: "anonymous", query: "filter=medic/doc_by_place&id=f1", expectedStatus: http.StatusFound},
		{name: "direct access", query: "filter=anything", user: "nat", roles: []string{"national_admin"}, expectedStatus: http.StatusOK, forwarded: true},
		{name: "own facility", query: "filter=medic/doc_by_place&id=f1", user: "dee", roles: []string{"district_admin"}, expectedStatus: http.StatusOK, forwarded: true},
		{name: "other facility", query: "filter=medic/doc_by_place&id=f2", user: "dee", roles: []string{"district_admin"}, expectedStatus: http.StatusForbidden},
		{name: "unassigned disabled", query: "filter=medic/doc_by_place&id=f1&unassigned=true", user: "dee", roles: []string{"district_admin"}, expectedStatus: http.StatusForbidden},
		{name: "settings doc", query: "filter=_doc_ids&doc_ids=" + docIDs, user: "chw", roles: []string{"data_entry"}, expectedStatus: http.StatusOK, forwarded: true},
		{name: "other doc ids", query: "filter=_doc_ids&doc_ids=" + url.QueryEscape(`["org.couchdb.user:admin"]`), user: "chw", roles: []string{"data_entry"}, expectedStatus: http.StatusForbidden},
		{name: "unknown filter", query: "filter=medic/everything", user: "chw", roles: []string{"data_entry"}, expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t)

			rec := g.do(t, httptest.NewRequest(http.MethodGet, "/medic/_changes?"+tt.query, nil), tt.user, tt.roles...)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.forwarded {
				assert.Len(t, g.backend.Requests(), 1)
			} else {
				assert.Empty(t, g.backend.Requests())
			}
			if tt.expectedStatus == http.StatusForbidden {
				assert.Equal(t, "Forbidden", rec.Body.String())
			}
		})
	}
}

func TestChangesUnassignedWhenEnabled(t *testing.T) {
	g := newTestGateway(t)
	g.server.opts.UnallocatedEnabled = true
	g.router = g.server.Router()

	rec := g.do(t, httptest.NewRequest(http.MethodGet, "/medic/_changes?filter=medic/doc_by_place&id=f1&unassigned=true", nil), "dee", "district_admin")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, g.backend.Requests(), 1)
}
