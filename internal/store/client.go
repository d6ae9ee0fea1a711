package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/metrics"
)

// Settings locate the store and the design document holding the app and its indexes
type Settings struct {
	URL      string
	DB       string
	DDoc     string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the document store and its full-text index over HTTP
type Client struct {
	httpClient *http.Client
	target     *url.URL
	settings   Settings
}

// NewClient creates a new store client
func NewClient(settings Settings) (*Client, error) {
	target, err := url.Parse(strings.TrimSuffix(settings.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid store url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid store url %q: scheme and host are required", settings.URL)
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if target.User != nil && settings.Username == "" {
		settings.Username = target.User.Username()
		settings.Password, _ = target.User.Password()
	}
	target.User = nil

	return &Client{
		httpClient: &http.Client{Timeout: settings.Timeout},
		target:     target,
		settings:   settings,
	}, nil
}

// Target returns the base URL requests are proxied to
func (c *Client) Target() *url.URL {
	t := *c.target
	return &t
}

// AppPath returns the path of the app rewrite handler, without leading slash
func (c *Client) AppPath() string {
	return path.Join(c.settings.DB, "_design", c.settings.DDoc, "_rewrite")
}

// Search queries the named full-text index. Query searches are POSTed as a
// form, option-only searches use the query string.
func (c *Client) Search(ctx context.Context, index string, opts SearchOptions) (*ResultPage, error) {
	start := time.Now()
	indexPath := path.Join("_fti/local", c.settings.DB, "_design", c.settings.DDoc, index)
	values := opts.Values()

	var req *http.Request
	var err error
	if opts.Q != "" {
		req, err = c.newRequest(ctx, http.MethodPost, indexPath, nil, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = c.newRequest(ctx, http.MethodGet, indexPath, values, nil)
	}
	if err != nil {
		return nil, apierr.Upstream("search", err)
	}

	body, status, err := c.do(req)
	if err != nil {
		metrics.RecordSearchCall(index, "failed", time.Since(start))
		return nil, apierr.Upstream("search", err)
	}
	if status >= http.StatusBadRequest {
		metrics.RecordSearchCall(index, "failed", time.Since(start))
		return nil, apierr.Upstream("search", fmt.Errorf("index returned status %d: %s", status, snippet(body)))
	}

	var decoded struct {
		Rows      *[]Row `json:"rows"`
		TotalRows int    `json:"total_rows"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.RecordSearchCall(index, "malformed", time.Since(start))
		return nil, apierr.Upstream("search", fmt.Errorf("failed to decode search response: %w", err))
	}
	if opts.Q != "" && decoded.Rows == nil {
		metrics.RecordSearchCall(index, "malformed", time.Since(start))
		log.Error().
			Str("index", index).
			Str("q", opts.Q).
			Str("response", snippet(body)).
			Msg("Search query failed")
		return nil, apierr.Upstream("search", ErrMalformedResponse)
	}

	page := &ResultPage{TotalRows: decoded.TotalRows}
	if decoded.Rows != nil {
		page.Rows = *decoded.Rows
	}

	metrics.RecordSearchCall(index, "success", time.Since(start))
	log.Debug().
		Str("index", index).
		Int("rows", len(page.Rows)).
		Int("total_rows", page.TotalRows).
		Dur("duration", time.Since(start)).
		Msg("Search completed")
	return page, nil
}

// Write sends a form or JSON body to the store and unwraps its payload
func (c *Client) Write(ctx context.Context, w WriteRequest) (*WriteResult, error) {
	var body io.Reader
	if w.Form != nil {
		body = strings.NewReader(w.Form.Encode())
	} else {
		encoded, err := json.Marshal(w.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode write body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := w.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := c.newRequest(ctx, method, w.Path, nil, body)
	if err != nil {
		return nil, apierr.Upstream("write", err)
	}
	req.Header.Set("Content-Type", w.ContentType())

	respBody, status, err := c.do(req)
	if err != nil {
		return nil, apierr.Upstream("write", err)
	}

	var envelope struct {
		Payload *WriteResult `json:"payload"`
		Error   string       `json:"error"`
		Reason  string       `json:"reason"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, apierr.Upstream("write", fmt.Errorf("failed to decode write response: %w", err))
	}
	if status >= http.StatusBadRequest || envelope.Payload == nil {
		reason := envelope.Reason
		if reason == "" {
			reason = envelope.Error
		}
		if reason == "" {
			reason = snippet(respBody)
		}
		return nil, apierr.Upstream("write", fmt.Errorf("store rejected write with status %d: %s", status, reason))
	}
	return envelope.Payload, nil
}

// Get fetches a raw resource from the store, returning its body and content type
func (c *Client) Get(ctx context.Context, resource string, query url.Values) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, resource, query, nil)
	if err != nil {
		return nil, "", apierr.Upstream("get", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apierr.Upstream("get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apierr.Upstream("get", fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", apierr.Upstream("get", fmt.Errorf("store returned status %d: %s", resp.StatusCode, snippet(body)))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// ErrInvalidCredentials is the message returned for rejected logins
const ErrInvalidCredentials = "Name or password is incorrect."

// Session checks name and password against the store's session endpoint
func (c *Client) Session(ctx context.Context, name, password string) (*Session, error) {
	encoded, err := json.Marshal(map[string]string{"name": name, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "_session", nil, bytes.NewReader(encoded))
	if err != nil {
		return nil, apierr.Upstream("session", err)
	}
	// the caller's credentials, not the gateway's
	req.Header.Del("Authorization")
	req.Header.Set("Content-Type", "application/json")

	body, resp, err := c.send(req)
	if err != nil {
		return nil, apierr.Upstream("session", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, apierr.Unauthorized(ErrInvalidCredentials)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apierr.Upstream("session", fmt.Errorf("store returned status %d: %s", resp.StatusCode, snippet(body)))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, apierr.Upstream("session", fmt.Errorf("failed to decode session response: %w", err))
	}
	if session.Name == "" {
		session.Name = name
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == auth.SessionCookie && cookie.Value != "" {
			session.Cookie = cookie
		}
	}
	if session.Cookie == nil {
		return nil, apierr.Upstream("session", errors.New("store issued no session cookie"))
	}
	return &session, nil
}

// VerifySession asks the store who owns the session cookie value
func (c *Client) VerifySession(ctx context.Context, value string) (*auth.UserContext, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "_session", nil, nil)
	if err != nil {
		return nil, apierr.Upstream("session", err)
	}
	req.Header.Del("Authorization")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: value})

	body, status, err := c.do(req)
	if err != nil {
		return nil, apierr.Upstream("session", err)
	}
	if status == http.StatusUnauthorized {
		return nil, apierr.Unauthorized(auth.ErrInvalidSession)
	}
	if status >= http.StatusBadRequest {
		return nil, apierr.Upstream("session", fmt.Errorf("store returned status %d: %s", status, snippet(body)))
	}

	var decoded struct {
		UserCtx struct {
			Name  *string  `json:"name"`
			Roles []string `json:"roles"`
		} `json:"userCtx"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apierr.Upstream("session", fmt.Errorf("failed to decode session response: %w", err))
	}
	// an expired or unknown cookie is answered with an anonymous user
	if decoded.UserCtx.Name == nil || *decoded.UserCtx.Name == "" {
		return nil, apierr.Unauthorized(auth.ErrInvalidSession)
	}
	return &auth.UserContext{Name: *decoded.UserCtx.Name, Roles: decoded.UserCtx.Roles}, nil
}

// Authenticate verifies basic auth credentials through the session endpoint
func (c *Client) Authenticate(ctx context.Context, name, password string) (*auth.UserContext, error) {
	session, err := c.Session(ctx, name, password)
	if err != nil {
		return nil, err
	}
	return &auth.UserContext{Name: session.Name, Roles: session.Roles}, nil
}

func (c *Client) newRequest(ctx context.Context, method, resource string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.target
	u.Path = path.Join("/", c.target.Path, resource)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.settings.Username != "" {
		req.SetBasicAuth(c.settings.Username, c.settings.Password)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	body, resp, err := c.send(req)
	if err != nil {
		if resp != nil {
			return nil, resp.StatusCode, err
		}
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// send returns the body with the response, whose body is already closed
func (c *Client) send(req *http.Request) ([]byte, *http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp, nil
}

func snippet(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
