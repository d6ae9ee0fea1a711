package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/proxy"
	"stealthcompany.com/medicapi/internal/store"
)

const appRoot = "/medic/_design/medic/_rewrite"

var testPermissions = map[string][]string{
	auth.CanAccessDirectly:             {"national_admin"},
	auth.CanViewAnalytics:              {"national_admin", "district_admin"},
	auth.CanViewDataRecords:            {"national_admin", "district_admin", "data_entry"},
	auth.CanViewUnallocatedDataRecords: {"national_admin", "district_admin"},
	auth.CanCreateRecords:              {"national_admin", "gateway"},
	auth.CanExportMessages:             {"national_admin", "district_admin"},
	auth.CanExportAudit:                {"national_admin"},
}

type stubSettings map[string]*auth.UserSettings

func (s stubSettings) UserSettings(ctx context.Context, username string) (*auth.UserSettings, error) {
	settings, ok := s[username]
	if !ok {
		return nil, apierr.Upstream("user settings", errors.New(auth.ErrNoSettings))
	}
	return settings, nil
}

// storeBackend stands in for the document store behind the proxies. When
// sessions is set it only accepts requests carrying one of those cookies.
type storeBackend struct {
	mu          sync.Mutex
	requests    []string
	bodies      []string
	credentials []string
	sessions    map[string]bool
}

func (b *storeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	session := ""
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		session = cookie.Value
	}

	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.RequestURI())
	b.bodies = append(b.bodies, string(body))
	b.credentials = append(b.credentials, r.Header.Get(auth.AuthorizationHeader)+"|"+session)
	sessions := b.sessions
	b.mu.Unlock()

	if sessions != nil && !sessions[session] {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"unauthorized"}`)
		return
	}
	io.WriteString(w, "from store")
}

func (b *storeBackend) Credentials() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.credentials...)
}

func (b *storeBackend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

type memoryRecorder struct {
	records []proxy.AuditRecord
	err     error
}

func (m *memoryRecorder) Record(ctx context.Context, record proxy.AuditRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type reportCall struct {
	name     string
	district string
}

type fakeReporter struct {
	calls  []reportCall
	result interface{}
	err    error
}

func (f *fakeReporter) Run(ctx context.Context, name, district string) (interface{}, error) {
	f.calls = append(f.calls, reportCall{name: name, district: district})
	return f.result, f.err
}

type recordCall struct {
	contentType string
	body        string
}

type fakeRecords struct {
	calls []recordCall
	err   error
}

func (f *fakeRecords) Create(ctx context.Context, contentType string, body []byte) (*store.WriteResult, error) {
	f.calls = append(f.calls, recordCall{contentType: contentType, body: string(body)})
	if f.err != nil {
		return nil, f.err
	}
	return &store.WriteResult{Success: true, ID: "5"}, nil
}

type searchCall struct {
	index string
	opts  store.SearchOptions
}

type getCall struct {
	resource string
	query    url.Values
}

type fakeStore struct {
	searches  []searchCall
	gets      []getCall
	passwords map[string]string
}

func (f *fakeStore) Search(ctx context.Context, index string, opts store.SearchOptions) (*store.ResultPage, error) {
	f.searches = append(f.searches, searchCall{index: index, opts: opts})
	return &store.ResultPage{Rows: []store.Row{{ID: "a"}}, TotalRows: 1}, nil
}

func (f *fakeStore) Get(ctx context.Context, resource string, query url.Values) ([]byte, string, error) {
	f.gets = append(f.gets, getCall{resource: resource, query: query})
	return []byte("id,from\n1,+123\n"), "text/csv", nil
}

func (f *fakeStore) Session(ctx context.Context, name, password string) (*store.Session, error) {
	if expected, ok := f.passwords[name]; !ok || expected != password {
		return nil, apierr.Unauthorized(store.ErrInvalidCredentials)
	}
	return &store.Session{
		Name:   name,
		Roles:  []string{"district_admin"},
		Cookie: &http.Cookie{Name: auth.SessionCookie, Value: storeSession(name), Path: "/", HttpOnly: true},
	}, nil
}

func (f *fakeStore) VerifySession(ctx context.Context, value string) (*auth.UserContext, error) {
	for name := range f.passwords {
		if value == storeSession(name) {
			return &auth.UserContext{Name: name, Roles: []string{"district_admin"}}, nil
		}
	}
	return nil, apierr.Unauthorized(auth.ErrInvalidSession)
}

func storeSession(name string) string {
	return "store-session-" + name
}

func (f *fakeStore) AppPath() string {
	return "medic/_design/medic/_rewrite"
}

type testGateway struct {
	server   *Server
	router   http.Handler
	auth     *auth.Service
	backend  *storeBackend
	recorder *memoryRecorder
	reports  *fakeReporter
	records  *fakeRecords
	store    *fakeStore
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	backend := &storeBackend{}
	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	documents := &fakeStore{passwords: map[string]string{"dee": "right"}}
	authService := auth.NewService("secret", testPermissions, stubSettings{
		"dee": {FacilityID: "f1", DistrictID: "d1"},
		"chw": {FacilityID: "f2", DistrictID: "d1"},
		"gw":  {FacilityID: "f3", DistrictID: "d3"},
	}, auth.WithSessionVerifier(documents))
	storeProxy := proxy.NewStoreProxy(target, "/medic/", appRoot+"/", nil)
	recorder := &memoryRecorder{}

	g := &testGateway{
		auth:     authService,
		backend:  backend,
		recorder: recorder,
		reports:  &fakeReporter{result: map[string]int{"count": 3}},
		records:  &fakeRecords{},
		store:    documents,
	}
	g.server = NewServer(Options{
		DB:         "medic",
		DDoc:       "medic",
		Version:    "1.2.3",
		SessionTTL: time.Hour,
	}, Dependencies{
		Auth:    authService,
		Reports: g.reports,
		Records: g.records,
		Store:   g.store,
		Proxy:   storeProxy,
		Audit:   proxy.NewAuditProxy(authService, recorder, storeProxy),
		Guard:   proxy.NewReplicationGuard("medic"),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "# metrics")
		}),
	})
	g.server.now = func() time.Time { return fixedNow }
	g.router = g.server.Router()
	return g
}

// do sends a request as user with roles, anonymously when user is empty
func (g *testGateway) do(t *testing.T, r *http.Request, user string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	if user != "" {
		token, err := g.auth.IssueToken(user, roles, time.Hour)
		require.NoError(t, err)
		r.Header.Set(auth.AuthorizationHeader, auth.BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, r)
	return rec
}
