package couchbase

import (
	"context"

	"stealthcompany.com/medicapi/internal/apierr"
	"stealthcompany.com/medicapi/internal/proxy"
)

// documentStore is the document access the stores need
type documentStore interface {
	InsertDocument(ctx context.Context, collection, docID string, data interface{}) error
	GetDocument(ctx context.Context, collection, docID string, result interface{}) error
}

// AuditStore persists audit records, one document per mutating request
type AuditStore struct {
	docs       documentStore
	collection string
}

// NewAuditStore creates an audit store writing to collection
func NewAuditStore(docs documentStore, collection string) *AuditStore {
	return &AuditStore{docs: docs, collection: collection}
}

// Record inserts the record under its id. Records are never overwritten.
func (s *AuditStore) Record(ctx context.Context, record proxy.AuditRecord) error {
	if err := s.docs.InsertDocument(ctx, s.collection, record.ID, record); err != nil {
		return apierr.Upstream("audit", err)
	}
	return nil
}
