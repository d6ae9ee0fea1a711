package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/login"
	"stealthcompany.com/medicapi/internal/proxy"
	"stealthcompany.com/medicapi/internal/store"
)

// Reporter runs named analytics reports
type Reporter interface {
	Run(ctx context.Context, name, district string) (interface{}, error)
}

// RecordCreator creates incoming records
type RecordCreator interface {
	Create(ctx context.Context, contentType string, body []byte) (*store.WriteResult, error)
}

// Store is the part of the store client the handlers call directly
type Store interface {
	Search(ctx context.Context, index string, opts store.SearchOptions) (*store.ResultPage, error)
	Get(ctx context.Context, resource string, query url.Values) ([]byte, string, error)
	Session(ctx context.Context, name, password string) (*store.Session, error)
	AppPath() string
}

// Options are the static settings of the HTTP surface
type Options struct {
	DB                 string
	DDoc               string
	Version            string
	SessionTTL         time.Duration
	SecureCookies      bool
	UnallocatedEnabled bool
}

// Dependencies are the collaborators of the HTTP surface
type Dependencies struct {
	Auth    *auth.Service
	Reports Reporter
	Records RecordCreator
	Store   Store
	// Proxy relays requests to the store unchanged
	Proxy   http.Handler
	Audit   *proxy.AuditProxy
	Guard   *proxy.ReplicationGuard
	Metrics http.Handler
}

// Server holds the handlers of the gateway
type Server struct {
	opts       Options
	deps       Dependencies
	pathPrefix string
	appPrefix  string
	now        func() time.Time
}

// NewServer creates the gateway handlers
func NewServer(opts Options, deps Dependencies) *Server {
	return &Server{
		opts:       opts,
		deps:       deps,
		pathPrefix: "/" + opts.DB + "/",
		appPrefix:  login.AppPrefix(opts.DB, opts.DDoc) + "/",
		now:        time.Now,
	}
}
