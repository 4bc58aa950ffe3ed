package domain

import (
	"context"
	"sync"
)

type MockCI struct {
	Pipeline    *RawPipeline
	PipelineErr error
	Summary     *RawTestSummary
	SummaryErr  error
	// Summaries overrides Summary per pipeline id.
	Summaries  map[int64]*RawTestSummary
	History    []RawHistoryEntry
	HistoryErr error
	Latest     *RawPipeline
	LatestErr  error

	mu           sync.Mutex
	HistoryLimit int
	HistoryRef   string
	Called       int
}

func (m *MockCI) count() {
	m.mu.Lock()
	m.Called++
	m.mu.Unlock()
}

func (m *MockCI) GetPipeline(ctx context.Context, projectID string, pipelineID int64) (*RawPipeline, error) {
	m.count()
	if m.PipelineErr != nil {
		return nil, m.PipelineErr
	}
	return m.Pipeline, nil
}

func (m *MockCI) GetTestSummary(ctx context.Context, projectID string, pipelineID int64) (*RawTestSummary, error) {
	m.count()
	if m.SummaryErr != nil {
		return nil, m.SummaryErr
	}
	if s, ok := m.Summaries[pipelineID]; ok {
		return s, nil
	}
	return m.Summary, nil
}

func (m *MockCI) GetPipelineHistory(ctx context.Context, projectID, ref string, limit int) ([]RawHistoryEntry, error) {
	m.count()
	m.mu.Lock()
	m.HistoryLimit = limit
	m.HistoryRef = ref
	m.mu.Unlock()
	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}
	return m.History, nil
}

func (m *MockCI) LatestPipeline(ctx context.Context, projectID, ref string) (*RawPipeline, error) {
	m.count()
	if m.LatestErr != nil {
		return nil, m.LatestErr
	}
	return m.Latest, nil
}

type MockWiki struct {
	Page      Page
	GetErr    error
	UpdateErr error
	Updates   []Page
}

func (w *MockWiki) GetPage(ctx context.Context, pageID string) (Page, error) {
	if w.GetErr != nil {
		return Page{}, w.GetErr
	}
	return w.Page, nil
}

func (w *MockWiki) UpdatePage(ctx context.Context, p Page) error {
	if w.UpdateErr != nil {
		return w.UpdateErr
	}
	w.Updates = append(w.Updates, p)
	w.Page = p
	w.Page.Version++
	return nil
}

type MockState struct {
	Synced map[string]int64
	Err    error
}

func (s *MockState) LastSynced(key string) (int64, bool) {
	id, ok := s.Synced[key]
	return id, ok
}

func (s *MockState) Record(ctx context.Context, key string, pipelineID int64) error {
	if s.Err != nil {
		return s.Err
	}
	if s.Synced == nil {
		s.Synced = make(map[string]int64)
	}
	s.Synced[key] = pipelineID
	return nil
}
