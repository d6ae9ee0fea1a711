package analytics

import (
	"context"
	"encoding/json"
	"time"

	"stealthcompany.com/medicapi/internal/store"
)

// Appointment is a scheduled visit of a registered pregnancy
type Appointment struct {
	PatientID   store.ID        `json:"patient_id"`
	PatientName string          `json:"patient_name"`
	Clinic      json.RawMessage `json:"clinic,omitempty"`
	Weeks       Weeks           `json:"weeks"`
	Date        time.Time       `json:"date"`
}

type candidate struct {
	doc   Document
	group int
	date  time.Time
}

// UpcomingAppointments lists appointments due from the start of today through
// the end of the look-ahead day that have no visit and no delivery yet.
func (e *Engine) UpcomingAppointments(ctx context.Context, district string) ([]Appointment, error) {
	today := startOfDay(e.clock())
	return e.appointments(ctx, district, Window{
		Start: today,
		End:   today.AddDate(0, 0, e.settings.UpcomingDays+1),
	})
}

// MissedAppointments lists appointments from the last days, up to the start of
// today, that were never followed by a visit.
func (e *Engine) MissedAppointments(ctx context.Context, district string) ([]Appointment, error) {
	today := startOfDay(e.clock())
	return e.appointments(ctx, district, Window{
		Start: today.AddDate(0, 0, -e.settings.MissedDays),
		End:   today,
	})
}

// appointments filters registrations down to those with an appointment in the
// half-open window, then excludes delivered and visited patients. Each
// follow-up lookup only runs while candidates remain.
func (e *Engine) appointments(ctx context.Context, district string, window Window) ([]Appointment, error) {
	docs, err := e.registrationDocs(ctx, RegistrationFilter{District: district})
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(docs))
	for _, doc := range docs {
		if c, ok := appointmentIn(doc, window); ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return []Appointment{}, nil
	}

	candidates, err = e.excludeDelivered(ctx, district, candidates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Appointment{}, nil
	}

	candidates, err = e.excludeVisited(ctx, district, candidates)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	result := make([]Appointment, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, Appointment{
			PatientID:   c.doc.PatientID,
			PatientName: c.doc.PatientName,
			Clinic:      c.doc.RelatedEntities.Clinic,
			Weeks:       weeksPregnant(c.doc, now),
			Date:        c.date,
		})
	}
	return result, nil
}

// appointmentIn returns the earliest task group whose appointment date falls
// in window. A group's appointment date is its earliest due date; later tasks
// of the group are reminders.
func appointmentIn(doc Document, window Window) (candidate, bool) {
	dates := make(map[int]time.Time)
	var order []int
	for _, task := range doc.ScheduledTasks {
		if task.Due.IsZero() {
			continue
		}
		current, ok := dates[task.Group]
		if !ok {
			order = append(order, task.Group)
		}
		if !ok || task.Due.Before(current) {
			dates[task.Group] = task.Due.Time
		}
	}

	var best candidate
	found := false
	for _, group := range order {
		date := dates[group]
		if date.Before(window.Start) || !date.Before(window.End) {
			continue
		}
		if !found || date.Before(best.date) {
			best = candidate{doc: doc, group: group, date: date}
			found = true
		}
	}
	return best, found
}

func candidateIDs(candidates []candidate) []string {
	docs := make([]Document, len(candidates))
	for i, c := range candidates {
		docs[i] = c.doc
	}
	return patientIDs(docs)
}

func (e *Engine) excludeDelivered(ctx context.Context, district string, candidates []candidate) ([]candidate, error) {
	deliveries, err := e.outcomeDocs(ctx, e.settings.Forms.Delivery, district, candidateIDs(candidates))
	if err != nil {
		return nil, err
	}
	delivered := patientSet(deliveries)

	kept := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := delivered[c.doc.PatientID]; !ok {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// excludeVisited drops candidates with a visit for their appointment group.
// A visit without a group counts for any group.
func (e *Engine) excludeVisited(ctx context.Context, district string, candidates []candidate) ([]candidate, error) {
	visits, err := e.outcomeDocs(ctx, e.settings.Forms.Visit, district, candidateIDs(candidates))
	if err != nil {
		return nil, err
	}

	visitedGroups := make(map[store.ID][]int)
	for _, visit := range visits {
		if visit.PatientID != "" {
			visitedGroups[visit.PatientID] = append(visitedGroups[visit.PatientID], visit.Group)
		}
	}

	kept := candidates[:0:0]
	for _, c := range candidates {
		if !visited(visitedGroups[c.doc.PatientID], c.group) {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

func visited(groups []int, group int) bool {
	for _, g := range groups {
		if g == 0 || g == group {
			return true
		}
	}
	return false
}
