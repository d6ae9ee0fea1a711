package analytics

import (
	"context"

	"stealthcompany.com/medicapi/internal/store"
)

// DefaultBatchSize is the number of ids sent in one index query
const DefaultBatchSize = 100

// Searcher is the index call the paginator drives
type Searcher interface {
	Search(ctx context.Context, index string, opts store.SearchOptions) (*store.ResultPage, error)
}

// MergedResultSet holds all pages of one logical query
type MergedResultSet struct {
	Rows      []store.Row `json:"rows"`
	TotalRows int         `json:"total_rows"`
}

// Paginate runs q once per batch of ids, one batch at a time in input order,
// and concatenates the pages. An empty id list issues a single query without
// an id clause. The first failing batch aborts the run and its error is
// returned as is.
func Paginate(ctx context.Context, s Searcher, index string, q Query, ids []string, batchSize int) (*MergedResultSet, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batches := [][]string{nil}
	if len(ids) > 0 {
		batches = batches[:0]
		for start := 0; start < len(ids); start += batchSize {
			end := start + batchSize
			if end > len(ids) {
				end = len(ids)
			}
			batches = append(batches, ids[start:end])
		}
	}

	merged := &MergedResultSet{Rows: []store.Row{}}
	for _, batch := range batches {
		query, err := q.Compile(batch)
		if err != nil {
			return nil, err
		}

		page, err := s.Search(ctx, index, store.SearchOptions{Q: query, IncludeDocs: true})
		if err != nil {
			return nil, err
		}

		merged.Rows = append(merged.Rows, page.Rows...)
		merged.TotalRows += page.TotalRows
	}
	return merged, nil
}
