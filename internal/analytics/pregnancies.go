package analytics

import (
	"context"
	"encoding/json"
	"time"

	"stealthcompany.com/medicapi/internal/store"
)

// DueDate is a pregnancy expected to deliver soon
type DueDate struct {
	PatientID   store.ID        `json:"patient_id"`
	PatientName string          `json:"patient_name"`
	Clinic      json.RawMessage `json:"clinic,omitempty"`
	Weeks       Weeks           `json:"weeks"`
	Date        time.Time       `json:"date"`
}

// ActivePregnancies counts distinct patients registered within the gestation
// range who have no delivery report.
func (e *Engine) ActivePregnancies(ctx context.Context, district string) (*Count, error) {
	docs, err := e.registrationDocs(ctx, RegistrationFilter{District: district})
	if err != nil {
		return nil, err
	}
	docs, err = e.withoutDelivered(ctx, district, docs)
	if err != nil {
		return nil, err
	}
	return &Count{Count: len(patientIDs(docs))}, nil
}

// UpcomingDueDates lists undelivered pregnancies expected within the due dates window
func (e *Engine) UpcomingDueDates(ctx context.Context, district string) ([]DueDate, error) {
	docs, err := e.registrationDocs(ctx, RegistrationFilter{
		MinWeeksPregnant: GestationWeeks - e.settings.DueDatesWeeks,
		MaxWeeksPregnant: GestationWeeks,
		District:         district,
	})
	if err != nil {
		return nil, err
	}
	docs, err = e.withoutDelivered(ctx, district, docs)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	dueDates := make([]DueDate, 0, len(docs))
	for _, doc := range docs {
		dueDates = append(dueDates, DueDate{
			PatientID:   doc.PatientID,
			PatientName: doc.PatientName,
			Clinic:      doc.RelatedEntities.Clinic,
			Weeks:       weeksPregnant(doc, now),
			Date:        doc.ExpectedDate.Time,
		})
	}
	return dueDates, nil
}
