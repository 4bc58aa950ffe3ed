package domain

import "time"

type PipelineStatus string

const (
	StatusSuccess  PipelineStatus = "success"
	StatusFailed   PipelineStatus = "failed"
	StatusRunning  PipelineStatus = "running"
	StatusPending  PipelineStatus = "pending"
	StatusCanceled PipelineStatus = "canceled"
	StatusSkipped  PipelineStatus = "skipped"
	StatusManual   PipelineStatus = "manual"
	StatusUnknown  PipelineStatus = "unknown"
)

// Finished reports whether a pipeline in this status will not change any more.
func (s PipelineStatus) Finished() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusSkipped:
		return true
	default:
		return false
	}
}

type HistoryMetric string

const (
	MetricDuration HistoryMetric = "duration"
	MetricTests    HistoryMetric = "tests"
)

const (
	DefaultHistoryCount = 10
	// MaxHistoryCount is the largest page the pipelines list endpoint serves.
	MaxHistoryCount = 100
)

type PipelineInfo struct {
	ID         int64
	Name       string
	Ref        string
	SHA        string
	Status     PipelineStatus
	WebURL     string
	Duration   *int64
	CreatedAt  *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// TestSummary aggregates the test report of one pipeline. A nil *TestSummary
// means no report is attached, which is not the same as Total == 0.
type TestSummary struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Errors  int
	Time    float64
}

// Consistent reports whether the per-category counts add up to Total.
func (t TestSummary) Consistent() bool {
	return t.Total == t.Passed+t.Failed+t.Skipped+t.Errors
}

type HistoryEntry struct {
	ID        int64
	Status    PipelineStatus
	Ref       string
	WebURL    string
	Magnitude int64
}

// PipelineHistory is ordered newest-first, as returned by the CI API.
type PipelineHistory struct {
	Metric  HistoryMetric
	Entries []HistoryEntry
}

type Snapshot struct {
	Name       string
	Pipeline   PipelineInfo
	Tests      *TestSummary
	History    PipelineHistory
	RenderedAt time.Time
}

// Page is a wiki document together with the version token it was read at.
type Page struct {
	ID      string
	Title   string
	Body    string
	Version int
}

// Target binds a CI project/ref to a wiki page section for watch mode.
type Target struct {
	Name      string
	ProjectID string
	Ref       string
	PageID    string
	Section   string
}

// Key identifies a target in the sync state.
func (t Target) Key() string {
	return t.ProjectID + "@" + t.Ref + "->" + t.PageID
}
