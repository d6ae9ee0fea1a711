package records

import (
	"context"
	"encoding/json"
	"mime"
	"net/url"
	"path"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/metrics"
	"stealthcompany.com/medicapi/internal/store"
)

// Supported content types
const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

// Error messages
const (
	ErrMissingMeta        = "Missing _meta property."
	ErrUnsupportedContent = "Content type not supported."
)

var (
	formRequired = []string{"message", "from"}
	formOptional = []string{"reported_date", "locale"}
	metaRequired = []string{"form", "from"}
	metaOptional = []string{"reported_date", "locale"}
)

// Writer sends writes to the store
type Writer interface {
	Write(ctx context.Context, w store.WriteRequest) (*store.WriteResult, error)
}

// Service creates incoming records through the app's add handler
type Service struct {
	writer  Writer
	addPath string
}

// NewService creates a records service. appPath is the app rewrite path of the store.
func NewService(writer Writer, appPath string) *Service {
	return &Service{
		writer:  writer,
		addPath: path.Join(appPath, "add"),
	}
}

// Create validates body according to contentType and writes the record.
// Nothing is written unless validation passes.
func (s *Service) Create(ctx context.Context, contentType string, body []byte) (*store.WriteResult, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	var req store.WriteRequest
	switch mediaType {
	case ContentTypeForm:
		req, err = s.formRequest(body)
	case ContentTypeJSON:
		req, err = s.jsonRequest(body)
	default:
		err = apierr.Validation(ErrUnsupportedContent)
	}
	if err != nil {
		metrics.RecordRecordCreation(contentTypeLabel(mediaType), "invalid")
		return nil, err
	}

	result, err := s.writer.Write(ctx, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("content_type", mediaType).
			Msg("Failed to create record")
		metrics.RecordRecordCreation(contentTypeLabel(mediaType), "failed")
		return nil, err
	}

	log.Info().
		Str("content_type", mediaType).
		Str("id", result.ID.String()).
		Msg("Record created")
	metrics.RecordRecordCreation(contentTypeLabel(mediaType), "created")
	return result, nil
}

func (s *Service) formRequest(body []byte) (store.WriteRequest, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return store.WriteRequest{}, apierr.Validation("Invalid form body: %v", err)
	}

	form := url.Values{}
	for _, field := range formRequired {
		value := values.Get(field)
		if value == "" {
			return store.WriteRequest{}, missingField(field)
		}
		form.Set(field, value)
	}
	for _, field := range formOptional {
		if value := values.Get(field); value != "" {
			form.Set(field, value)
		}
	}

	return store.WriteRequest{Path: s.addPath, Form: form}, nil
}

func (s *Service) jsonRequest(body []byte) (store.WriteRequest, error) {
	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		return store.WriteRequest{}, apierr.Validation("Invalid JSON body: %v", err)
	}

	meta, ok := record["_meta"].(map[string]interface{})
	if !ok {
		return store.WriteRequest{}, apierr.Validation(ErrMissingMeta)
	}

	cleaned := make(map[string]interface{}, len(metaRequired)+len(metaOptional))
	for _, field := range metaRequired {
		value, ok := meta[field]
		if !ok || value == nil || value == "" {
			return store.WriteRequest{}, missingField(field)
		}
		cleaned[field] = value
	}
	for _, field := range metaOptional {
		if value, ok := meta[field]; ok && value != nil {
			cleaned[field] = value
		}
	}
	record["_meta"] = cleaned

	return store.WriteRequest{Path: s.addPath, Body: record}, nil
}

// contentTypeLabel keeps client supplied content types out of metric labels
func contentTypeLabel(mediaType string) string {
	if mediaType == ContentTypeForm || mediaType == ContentTypeJSON {
		return mediaType
	}
	return "other"
}

func missingField(field string) error {
	return apierr.Validation("Missing required field: %s", field)
}
