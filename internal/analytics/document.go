package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/store"
)

// Timestamp decodes ISO-8601 strings, plain dates and epoch milliseconds
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts `"2024-01-02T10:00:00.000Z"`, `"2024-01-02"`, `1700000000000` and null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, dateLayout} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
		return fmt.Errorf("unrecognised date %q", s)
	}

	millis, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return fmt.Errorf("unrecognised date %s", data)
		}
		millis = int64(f)
	}
	t.Time = time.UnixMilli(millis).UTC()
	return nil
}

// Task is one scheduled message of a registration. Tasks sharing a group
// belong to the same appointment.
type Task struct {
	Group int       `json:"group"`
	Due   Timestamp `json:"due"`
}

// RelatedEntities holds references the report output passes through untouched
type RelatedEntities struct {
	Clinic json.RawMessage `json:"clinic,omitempty"`
}

// Document is the typed view of a data record returned by the index
type Document struct {
	PatientID       store.ID        `json:"patient_id"`
	PatientName     string          `json:"patient_name"`
	Form            string          `json:"form"`
	ReportedDate    Timestamp       `json:"reported_date"`
	LmpDate         Timestamp       `json:"lmp_date"`
	ExpectedDate    Timestamp       `json:"expected_date"`
	RelatedEntities RelatedEntities `json:"related_entities"`
	ScheduledTasks  []Task          `json:"scheduled_tasks"`
	Group           int             `json:"group"`
}

// decodeDocuments decodes the included docs of rows, keeping row order.
// Rows without a doc decode to an empty Document.
func decodeDocuments(rows []store.Row) ([]Document, error) {
	docs := make([]Document, len(rows))
	for i, row := range rows {
		if len(row.Doc) == 0 {
			continue
		}
		if err := json.Unmarshal(row.Doc, &docs[i]); err != nil {
			return nil, apierr.Upstream("decode", fmt.Errorf("row %d (%s): %w", i, row.ID, err))
		}
	}
	return docs, nil
}

// patientIDs returns the distinct non-empty patient ids of docs in first-seen order
func patientIDs(docs []Document) []string {
	seen := make(map[store.ID]struct{}, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.PatientID == "" {
			continue
		}
		if _, ok := seen[doc.PatientID]; ok {
			continue
		}
		seen[doc.PatientID] = struct{}{}
		ids = append(ids, doc.PatientID.String())
	}
	return ids
}

func patientSet(docs []Document) map[store.ID]struct{} {
	set := make(map[store.ID]struct{}, len(docs))
	for _, doc := range docs {
		if doc.PatientID != "" {
			set[doc.PatientID] = struct{}{}
		}
	}
	return set
}
