package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davarch/ci-wiki-sync/internal/domain"
	"github.com/davarch/ci-wiki-sync/internal/report"
	"github.com/davarch/ci-wiki-sync/internal/section"
)

// enrichConcurrency bounds the per-entry test summary lookups of the
// "tests" history metric.
const enrichConcurrency = 4

type SyncOptions struct {
	HistoryCount  int
	HistoryMetric domain.HistoryMetric
	HeadingLevel  int
}

type SyncRequest struct {
	ProjectID  string
	PipelineID int64
	// Ref filters the history window; empty means all refs.
	Ref    string
	PageID string
	// Section overrides the section key, which defaults to the pipeline name.
	Section string
	DryRun  bool
}

type SyncResult struct {
	Section  string
	Action   section.Action
	Written  bool
	Document string
	Version  int
}

type SyncUseCase struct {
	log  *zap.Logger
	ci   domain.CIClient
	wiki domain.WikiClient
	opts SyncOptions
	now  func() time.Time
}

func NewSyncUseCase(l *zap.Logger, ci domain.CIClient, wiki domain.WikiClient, opts SyncOptions) *SyncUseCase {
	if opts.HistoryCount <= 0 {
		opts.HistoryCount = domain.DefaultHistoryCount
	}
	if opts.HistoryMetric == "" {
		opts.HistoryMetric = domain.MetricDuration
	}
	return &SyncUseCase{log: l, ci: ci, wiki: wiki, opts: opts, now: time.Now}
}

// Sync renders the pipeline into its page section. The page is only written
// once a complete fragment and merged document exist, and only on top of the
// version that was read.
func (uc *SyncUseCase) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	snap, err := uc.snapshot(ctx, req)
	if err != nil {
		return SyncResult{}, err
	}

	fragment, err := report.Render(snap)
	if err != nil {
		return SyncResult{}, err
	}

	page, err := uc.wiki.GetPage(ctx, req.PageID)
	if err != nil {
		return SyncResult{}, err
	}

	merged, err := section.Merger{Level: uc.opts.HeadingLevel}.Merge(page.Body, snap.Name, fragment)
	if err != nil {
		return SyncResult{}, fmt.Errorf("page %s: %w", req.PageID, err)
	}

	res := SyncResult{
		Section:  snap.Name,
		Action:   merged.Action,
		Document: merged.Document,
		Version:  page.Version,
	}

	log := uc.log.With(
		zap.String("page", req.PageID),
		zap.String("section", snap.Name),
		zap.String("action", string(merged.Action)),
		zap.Int("version", page.Version),
	)

	switch {
	case req.DryRun:
		log.Info("dry run: page not written")
		return res, nil
	case merged.Document == page.Body:
		log.Info("page already up to date")
		return res, nil
	}

	page.Body = merged.Document
	if err := uc.wiki.UpdatePage(ctx, page); err != nil {
		return res, err
	}

	res.Written = true
	res.Version = page.Version + 1
	log.Info("page updated", zap.Int("new_version", res.Version))
	return res, nil
}

func (uc *SyncUseCase) snapshot(ctx context.Context, req SyncRequest) (domain.Snapshot, error) {
	var (
		rawPipeline *domain.RawPipeline
		rawSummary  *domain.RawTestSummary
		rawHistory  []domain.RawHistoryEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawPipeline, err = uc.ci.GetPipeline(gctx, req.ProjectID, req.PipelineID)
		return err
	})
	g.Go(func() error {
		s, err := uc.ci.GetTestSummary(gctx, req.ProjectID, req.PipelineID)
		switch {
		case errors.Is(err, domain.ErrAuth):
			return err
		case err != nil:
			if gctx.Err() == nil {
				uc.log.Warn("test summary unavailable", zap.Int64("pipeline", req.PipelineID), zap.Error(err))
			}
			return nil
		}
		rawSummary = s
		return nil
	})
	g.Go(func() error {
		var err error
		rawHistory, err = uc.ci.GetPipelineHistory(gctx, req.ProjectID, req.Ref, uc.opts.HistoryCount)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}

	info, err := domain.ParsePipelineInfo(rawPipeline)
	if err != nil {
		return domain.Snapshot{}, err
	}

	tests := domain.ParseTestSummary(rawSummary)
	if tests != nil && !tests.Consistent() {
		uc.log.Warn("test summary counts do not add up",
			zap.Int("total", tests.Total),
			zap.Int("passed", tests.Passed),
			zap.Int("failed", tests.Failed),
			zap.Int("skipped", tests.Skipped),
			zap.Int("errors", tests.Errors),
		)
	}

	if len(rawHistory) > uc.opts.HistoryCount {
		rawHistory = rawHistory[:uc.opts.HistoryCount]
	}
	if uc.opts.HistoryMetric == domain.MetricTests {
		rawHistory = uc.withTestCounts(ctx, req.ProjectID, rawHistory)
	}

	name := req.Section
	if name == "" {
		name = info.Name
	}

	uc.log.Debug("snapshot",
		zap.Int64("pipeline", info.ID),
		zap.String("status", string(info.Status)),
		zap.Bool("tests", tests != nil),
		zap.Int("history", len(rawHistory)),
	)

	return domain.Snapshot{
		Name:       name,
		Pipeline:   info,
		Tests:      tests,
		History:    domain.ParseHistory(rawHistory, uc.opts.HistoryCount, uc.opts.HistoryMetric),
		RenderedAt: uc.now(),
	}, nil
}

// withTestCounts returns a copy of entries with PassedTests filled in. Lookup
// failures leave the count unset.
func (uc *SyncUseCase) withTestCounts(ctx context.Context, projectID string, entries []domain.RawHistoryEntry) []domain.RawHistoryEntry {
	out := make([]domain.RawHistoryEntry, len(entries))
	copy(out, entries)

	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range out {
		if out[i].ID == nil {
			continue
		}
		i := i
		g.Go(func() error {
			id := *out[i].ID
			s, err := uc.ci.GetTestSummary(ctx, projectID, id)
			if err != nil {
				uc.log.Debug("history test summary unavailable", zap.Int64("pipeline", id), zap.Error(err))
				return nil
			}
			if ts := domain.ParseTestSummary(s); ts != nil {
				passed := ts.Passed
				out[i].PassedTests = &passed
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}
