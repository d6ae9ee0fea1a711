package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/metrics"
)

// AuditRecord is written once per mutating request before it reaches the store
type AuditRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditRecorder durably persists audit records
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord) error
}

// Identifier resolves the caller of a request
type Identifier interface {
	UserContext(r *http.Request) (*auth.UserContext, error)
}

// Outcome is how the audit proxy resolved a request
type Outcome int

const (
	// Forwarded means the request was audited and relayed to the store
	Forwarded Outcome = iota
	// Denied means the caller was not authorized and nothing was forwarded
	Denied
	// Failed means the audit record could not be written and nothing was forwarded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Forwarded:
		return "forwarded"
	case Denied:
		return "denied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned by AuditProxy.Audit. Err is set for Denied and Failed.
// On Denied and Failed nothing has been written to the response.
type Result struct {
	Outcome Outcome
	Err     error
}

// AuditProxy forwards mutating requests only after authorizing them and recording an audit entry
type AuditProxy struct {
	identifier Identifier
	recorder   AuditRecorder
	forward    http.Handler
	now        func() time.Time
	newID      func() string
}

// NewAuditProxy creates an audit proxy in front of forward
func NewAuditProxy(identifier Identifier, recorder AuditRecorder, forward http.Handler) *AuditProxy {
	return &AuditProxy{
		identifier: identifier,
		recorder:   recorder,
		forward:    forward,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Audit authorizes r, records it and forwards it unchanged. The body is
// streamed to the store untouched. Each call creates a new record.
func (p *AuditProxy) Audit(w http.ResponseWriter, r *http.Request) Result {
	user, err := p.identifier.UserContext(r)
	if err != nil {
		log.Warn().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Unauthorized write attempt")
		metrics.RecordAuditOutcome(Denied.String())
		return Result{Outcome: Denied, Err: err}
	}

	record := AuditRecord{
		ID:        p.newID(),
		Type:      "audit_record",
		Method:    r.Method,
		Path:      r.URL.RequestURI(),
		Identity:  user.Name,
		Timestamp: p.now().UTC(),
	}
	if err := p.recorder.Record(r.Context(), record); err != nil {
		log.Error().
			Err(err).
			Str("audit_id", record.ID).
			Str("method", r.Method).
			Str("path", record.Path).
			Str("user", user.Name).
			Msg("Failed to record audit entry")
		metrics.RecordAuditOutcome(Failed.String())
		return Result{Outcome: Failed, Err: err}
	}

	log.Info().
		Str("audit_id", record.ID).
		Str("method", r.Method).
		Str("path", record.Path).
		Str("user", user.Name).
		Msg("Audited write forwarded")
	metrics.RecordAuditOutcome(Forwarded.String())

	p.forward.ServeHTTP(w, r)
	return Result{Outcome: Forwarded}
}
