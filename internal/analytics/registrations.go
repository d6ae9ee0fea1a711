package analytics

import (
	"context"
	"time"
)

// RegistrationFilter selects pregnancy registrations. Explicit dates take
// precedence over the weeks-pregnant range.
type RegistrationFilter struct {
	StartDate        time.Time
	EndDate          time.Time
	MinWeeksPregnant int
	MaxWeeksPregnant int
	District         string
	PatientIDs       []string
}

func (e *Engine) registrationQuery(f RegistrationFilter) Query {
	var window Window
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() {
		window = ExpectedWindow(f.StartDate, f.EndDate)
	} else {
		window = WeeksPregnantWindow(e.clock(), f.MinWeeksPregnant, f.MaxWeeksPregnant)
	}
	return Query{
		Forms:    e.registrationForms(),
		Window:   window,
		District: f.District,
	}
}

// Registrations returns all registrations matching f, batching over its patient ids
func (e *Engine) Registrations(ctx context.Context, f RegistrationFilter) (*MergedResultSet, error) {
	return Paginate(ctx, e.searcher, e.settings.Index, e.registrationQuery(f), f.PatientIDs, e.settings.BatchSize)
}

func (e *Engine) registrationDocs(ctx context.Context, f RegistrationFilter) ([]Document, error) {
	results, err := e.Registrations(ctx, f)
	if err != nil {
		return nil, err
	}
	return decodeDocuments(results.Rows)
}

// outcomeDocs looks up reports of the given form for patientIDs over the
// gestation period ending today.
func (e *Engine) outcomeDocs(ctx context.Context, form, district string, patientIDs []string) ([]Document, error) {
	now := e.clock()
	q := Query{
		Forms:     []string{form},
		DateField: "reported_date",
		Window:    ReportedWindow(addWeeks(now, -DefaultMaxWeeksPregnant), now),
		District:  district,
	}
	results, err := Paginate(ctx, e.searcher, e.settings.Index, q, patientIDs, e.settings.BatchSize)
	if err != nil {
		return nil, err
	}
	return decodeDocuments(results.Rows)
}

// withoutDelivered drops registrations whose patient has a delivery report.
// The lookup is skipped when docs is empty.
func (e *Engine) withoutDelivered(ctx context.Context, district string, docs []Document) ([]Document, error) {
	ids := patientIDs(docs)
	if len(ids) == 0 {
		return docs, nil
	}

	deliveries, err := e.outcomeDocs(ctx, e.settings.Forms.Delivery, district, ids)
	if err != nil {
		return nil, err
	}
	delivered := patientSet(deliveries)

	kept := docs[:0:0]
	for _, doc := range docs {
		if _, ok := delivered[doc.PatientID]; !ok {
			kept = append(kept, doc)
		}
	}
	return kept, nil
}
