package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("document not found")

// collectionSource resolves collections by name
type collectionSource interface {
	Collection(name string) *gocb.Collection
}

// DocumentManager handles document operations on named collections
type DocumentManager struct {
	source collectionSource
}

// NewDocumentManager creates a new document manager
func NewDocumentManager(source collectionSource) *DocumentManager {
	return &DocumentManager{source: source}
}

// InsertDocument stores a new document, failing if docID already exists
func (dm *DocumentManager) InsertDocument(ctx context.Context, collection, docID string, data interface{}) error {
	col := dm.source.Collection(collection)

	_, err := col.Insert(docID, data, &gocb.InsertOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to insert document %s into %s: %w", docID, collection, err)
	}
	return nil
}

// GetDocument retrieves a document into result
func (dm *DocumentManager) GetDocument(ctx context.Context, collection, docID string, result interface{}) error {
	col := dm.source.Collection(collection)

	resultDoc, err := col.Get(docID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("%s/%s: %w", collection, docID, ErrNotFound)
		}
		return fmt.Errorf("failed to get document %s from %s: %w", docID, collection, err)
	}

	if err := resultDoc.Content(result); err != nil {
		return fmt.Errorf("failed to parse document content: %w", err)
	}
	return nil
}
