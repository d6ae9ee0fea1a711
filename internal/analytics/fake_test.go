package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stealthcompany.com/medicapi/internal/store"
)

type searchCall struct {
	index string
	opts  store.SearchOptions
}

type searchResponse struct {
	page *store.ResultPage
	err  error
}

// fakeSearcher answers calls in order, repeating the last response once exhausted
type fakeSearcher struct {
	responses []searchResponse
	calls     []searchCall
}

func (f *fakeSearcher) Search(ctx context.Context, index string, opts store.SearchOptions) (*store.ResultPage, error) {
	f.calls = append(f.calls, searchCall{index: index, opts: opts})
	if len(f.responses) == 0 {
		return &store.ResultPage{}, nil
	}
	i := len(f.calls) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i].page, f.responses[i].err
}

func (f *fakeSearcher) queries() []string {
	qs := make([]string, len(f.calls))
	for i, c := range f.calls {
		qs[i] = c.opts.Q
	}
	return qs
}

func rows(docs ...string) searchResponse {
	page := &store.ResultPage{Rows: []store.Row{}, TotalRows: len(docs)}
	for i, doc := range docs {
		page.Rows = append(page.Rows, store.Row{ID: fmt.Sprintf("row-%d", i), Doc: json.RawMessage(doc)})
	}
	return searchResponse{page: page}
}

func failure(err error) searchResponse {
	return searchResponse{err: err}
}

func patient(id int) string {
	return fmt.Sprintf(`{"patient_id":%d}`, id)
}

func iso(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// registration builds a registration doc with tasks given as group:due pairs
func registration(id int, tasks ...interface{}) string {
	parts := make([]string, 0, len(tasks)/2)
	for i := 0; i+1 < len(tasks); i += 2 {
		parts = append(parts, fmt.Sprintf(`{"group":%d,"due":"%s"}`, tasks[i].(int), iso(tasks[i+1].(time.Time))))
	}
	return fmt.Sprintf(`{"patient_id":%d,"scheduled_tasks":[%s]}`, id, strings.Join(parts, ","))
}

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

func newTestEngine(s Searcher, batchSize int) *Engine {
	settings := DefaultSettings()
	settings.BatchSize = batchSize
	return NewEngine(s, settings, WithClock(func() time.Time { return fixedNow }))
}
