package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultSearchLimit is applied to query searches that do not set a limit
const DefaultSearchLimit = 1000

// ErrMalformedResponse is wrapped when the index answers a query without rows
var ErrMalformedResponse = errors.New("search response has no rows")

// ID is a document or patient identifier that the store may encode as a
// JSON string or a JSON number. It is always handled as a string.
type ID string

// UnmarshalJSON accepts both `"123"` and `123`
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// SearchOptions are the options accepted by the full-text index
type SearchOptions struct {
	Q           string
	Schema      string
	Sort        string
	Skip        int
	Limit       int
	IncludeDocs bool
}

// Values encodes the options the way the index expects them, applying the
// default limit to query searches.
func (o SearchOptions) Values() url.Values {
	v := url.Values{}
	if o.Q != "" {
		v.Set("q", o.Q)
		if o.Limit == 0 {
			o.Limit = DefaultSearchLimit
		}
	}
	if o.Schema != "" {
		v.Set("schema", o.Schema)
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Skip > 0 {
		v.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.IncludeDocs {
		v.Set("include_docs", "true")
	}
	return v
}

// Row is one hit returned by the index. Doc is only set when docs were included.
type Row struct {
	ID     string          `json:"id"`
	Score  float64         `json:"score,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
	Doc    json.RawMessage `json:"doc,omitempty"`
}

// ResultPage is the answer to one search call
type ResultPage struct {
	Rows      []Row `json:"rows"`
	TotalRows int   `json:"total_rows"`
}

// WriteRequest describes a write against the store. Exactly one of Form or
// Body is sent.
type WriteRequest struct {
	Path   string
	Method string
	Form   url.Values
	Body   interface{}
}

// ContentType returns the content type the request will be sent with
func (w WriteRequest) ContentType() string {
	if w.Form != nil {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}

// WriteResult is the payload returned by the store for a successful write
type WriteResult struct {
	Success bool `json:"success"`
	ID      ID   `json:"id"`
}

// Session is the user the store authenticated. Cookie is the store's own
// session cookie, which the store accepts on later requests.
type Session struct {
	Name   string       `json:"name"`
	Roles  []string     `json:"roles"`
	Cookie *http.Cookie `json:"-"`
}
