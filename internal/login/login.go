package login

import (
	"html/template"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// AppPrefix returns the application root, /<db>/_design/<ddoc>/_rewrite
func AppPrefix(db, ddoc string) string {
	return path.Join("/", db, "_design", ddoc, "_rewrite")
}

// SafePath resolves redirect against the server root and returns it only when
// it stays inside the application. Anything else yields the application root.
// Scheme and host of absolute targets are dropped.
func SafePath(db, ddoc, redirect string) string {
	appPrefix := AppPrefix(db, ddoc)
	if redirect == "" {
		return appPrefix
	}

	ref, err := url.Parse(redirect)
	if err != nil {
		return appPrefix
	}
	resolved := (&url.URL{Path: "/"}).ResolveReference(ref)

	// ResolveReference only removes literal dot segments, not %2e%2e
	cleaned := path.Clean(resolved.Path)
	if strings.HasSuffix(resolved.Path, "/") && cleaned != "/" {
		cleaned += "/"
	}
	if cleaned != appPrefix && !strings.HasPrefix(cleaned, appPrefix+"/") {
		return appPrefix
	}
	if cleaned != resolved.Path {
		resolved.Path = cleaned
		resolved.RawPath = ""
	}

	safe := resolved.EscapedPath()
	if resolved.RawQuery != "" {
		safe += "?" + resolved.RawQuery
	}
	if resolved.Fragment != "" {
		safe += "#" + resolved.EscapedFragment()
	}
	return safe
}

var page = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Login</title>
</head>
<body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form id="form" action="{{.Action}}" method="POST">
<input type="hidden" name="next" value="{{.Redirect}}">
<label for="user">User name</label>
<input id="user" name="name" type="text" autocomplete="username">
<label for="password">Password</label>
<input id="password" name="password" type="password" autocomplete="current-password">
<button type="submit">Login</button>
</form>
</body>
</html>
`))

// Page is the data of the login page
type Page struct {
	// Action is where the credentials are posted
	Action string
	// Redirect is the sanitized target after a successful login
	Redirect string
	Error    string
}

// Render writes the login page with status
func Render(w http.ResponseWriter, status int, data Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render login page")
	}
}
