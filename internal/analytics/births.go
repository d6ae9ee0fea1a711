package analytics

import (
	"context"
)

// Count is a distinct patient count
type Count struct {
	Count int `json:"count"`
}

// TotalBirths counts distinct patients that delivered during the lookback
// period, either flagged on their registration or reported directly.
// Both sources are always queried.
func (e *Engine) TotalBirths(ctx context.Context, district string) (*Count, error) {
	now := e.clock()
	since := addWeeks(now, -e.settings.BirthsLookbackWeeks)

	registered := Query{
		Forms:    e.registrationForms(),
		Window:   ReportedWindow(since, now),
		District: district,
		Terms:    []Term{{Field: "status", Value: "delivered"}},
	}
	reported := Query{
		Forms:     []string{e.settings.Forms.Delivery},
		DateField: "reported_date",
		Window:    ReportedWindow(since, now),
		District:  district,
	}

	var docs []Document
	for _, q := range []Query{registered, reported} {
		results, err := Paginate(ctx, e.searcher, e.settings.Index, q, nil, e.settings.BatchSize)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeDocuments(results.Rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, decoded...)
	}

	return &Count{Count: len(patientIDs(docs))}, nil
}
