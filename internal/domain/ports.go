package domain

import "context"

type CIClient interface {
	GetPipeline(ctx context.Context, projectID string, pipelineID int64) (*RawPipeline, error)
	// GetTestSummary returns nil, nil when the pipeline has no test report.
	GetTestSummary(ctx context.Context, projectID string, pipelineID int64) (*RawTestSummary, error)
	GetPipelineHistory(ctx context.Context, projectID, ref string, limit int) ([]RawHistoryEntry, error)
	LatestPipeline(ctx context.Context, projectID, ref string) (*RawPipeline, error)
}

type WikiClient interface {
	GetPage(ctx context.Context, pageID string) (Page, error)
	// UpdatePage writes p.Body on top of p.Version and fails with
	// ErrConcurrentModification when the page moved on in between.
	UpdatePage(ctx context.Context, p Page) error
}

type SyncState interface {
	LastSynced(key string) (int64, bool)
	Record(ctx context.Context, key string, pipelineID int64) error
}
