package analytics

import (
	"regexp"
	"strings"
	"time"

	"stealthcompany.com/medicapi/internal/apierr"
)

const dateLayout = "2006-01-02"

var (
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	fieldPattern = regexp.MustCompile(`^[a-z_]+$`)
)

// ValidToken reports whether s may be embedded in an index query as a value
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Term is an exact-match clause appended after the window
type Term struct {
	Field string
	Value string
}

// Query is the structured filter compiled into an index query string.
// DateField defaults to expected_date.
type Query struct {
	Forms     []string
	DateField string
	Window    Window
	District  string
	Terms     []Term
}

// Compile builds the index query, adding a patient_id clause when ids is not empty.
// Ids are emitted in the order given.
func (q Query) Compile(ids []string) (string, error) {
	if q.Window.Start.After(q.Window.End) {
		return "", apierr.Validation("invalid window: start %s is after end %s",
			q.Window.Start.UTC().Format(dateLayout), q.Window.End.UTC().Format(dateLayout))
	}
	if len(q.Forms) == 0 {
		return "", apierr.Validation("at least one form is required")
	}

	dateField := q.DateField
	if dateField == "" {
		dateField = "expected_date"
	}
	if !fieldPattern.MatchString(dateField) {
		return "", apierr.Validation("invalid date field %q", dateField)
	}

	forms := make([]string, 0, len(q.Forms))
	for _, form := range q.Forms {
		if !tokenPattern.MatchString(form) {
			return "", apierr.Validation("invalid form code %q", form)
		}
		forms = append(forms, `"`+form+`"`)
	}

	var b strings.Builder
	b.WriteString("errors<int>:0 AND form:(")
	b.WriteString(strings.Join(forms, " OR "))
	b.WriteString(") AND ")
	b.WriteString(dateField)
	b.WriteString("<date>:[")
	b.WriteString(formatDate(q.Window.Start))
	b.WriteString(" TO ")
	b.WriteString(formatDate(q.Window.End))
	b.WriteString("]")

	if q.District != "" {
		if !tokenPattern.MatchString(q.District) {
			return "", apierr.Validation("invalid district %q", q.District)
		}
		b.WriteString(` AND district:"` + q.District + `"`)
	}

	for _, term := range q.Terms {
		if !fieldPattern.MatchString(term.Field) || !tokenPattern.MatchString(term.Value) {
			return "", apierr.Validation("invalid term %s:%q", term.Field, term.Value)
		}
		b.WriteString(" AND " + term.Field + `:"` + term.Value + `"`)
	}

	if len(ids) > 0 {
		for _, id := range ids {
			if !tokenPattern.MatchString(id) {
				return "", apierr.Validation("invalid patient id %q", id)
			}
		}
		b.WriteString(" AND patient_id:(")
		b.WriteString(strings.Join(ids, " OR "))
		b.WriteString(")")
	}

	return b.String(), nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
