package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	staticResources  = regexp.MustCompile(`/(templates|static)/`)
	appcacheManifest = regexp.MustCompile(`manifest\.appcache`)
)

// manifestHeaders are fixed so clients always revalidate the appcache manifest
var manifestHeaders = [][2]string{
	{"Cache-Control", "must-revalidate"},
	{"Content-Type", "text/cache-manifest; charset=utf-8"},
	{"Last-Modified", "Tue, 28 Apr 2015 02:23:40 GMT"},
	{"Expires", "Tue, 28 Apr 2015 02:21:40 GMT"},
}

// StoreProxy relays requests to the document store
type StoreProxy struct {
	proxy      *httputil.ReverseProxy
	pathPrefix string
	appPrefix  string
}

// NewStoreProxy creates a proxy to target. pathPrefix is "/<db>/" and appPrefix
// the app rewrite path under it, both with leading and trailing slash.
func NewStoreProxy(target *url.URL, pathPrefix, appPrefix string, transport http.RoundTripper) *StoreProxy {
	p := &StoreProxy{pathPrefix: pathPrefix, appPrefix: appPrefix}
	p.proxy = &httputil.ReverseProxy{
		Director: func(request *http.Request) {
			request.URL.Scheme = target.Scheme
			request.URL.Host = target.Host
			request.Host = target.Host
			// gateway bearer tokens mean nothing to the store. Path, query,
			// cookies and basic auth are preserved from the original request.
			if strings.HasPrefix(request.Header.Get("Authorization"), "Bearer ") {
				request.Header.Del("Authorization")
			}
		},
		Transport:      transport,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
		FlushInterval:  -1,
	}
	return p
}

func (p *StoreProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *StoreProxy) isAppPage(requestURI string) bool {
	return !staticResources.MatchString(requestURI) && strings.Contains(requestURI, p.appPrefix)
}

func (p *StoreProxy) modifyResponse(resp *http.Response) error {
	requestURI := resp.Request.URL.RequestURI()

	// never show the basic auth prompt
	resp.Header.Set("WWW-Authenticate", "Cookie")

	switch {
	case appcacheManifest.MatchString(requestURI):
		for _, h := range manifestHeaders {
			resp.Header.Set(h[0], h[1])
		}
	case p.isAppPage(requestURI) && resp.StatusCode == http.StatusUnauthorized:
		resp.StatusCode = http.StatusFound
		resp.Status = fmt.Sprintf("%d %s", http.StatusFound, http.StatusText(http.StatusFound))
		resp.Header.Set("Location", LoginRedirect(p.pathPrefix, requestURI))
	}
	return nil
}

func (p *StoreProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Store proxy error")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "Server error: %v", err)
}

// LoginRedirect returns the login page URL that brings the user back to requestURI
func LoginRedirect(pathPrefix, requestURI string) string {
	return pathPrefix + "login?redirect=" + url.QueryEscape(requestURI)
}
