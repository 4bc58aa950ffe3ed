package application

import (
	"context"
	"fmt"

	"github.com/davarch/ci-wiki-sync/internal/domain"
	"go.uber.org/zap"
)

type Syncer interface {
	Sync(ctx context.Context, req SyncRequest) (SyncResult, error)
}

// PollUseCase syncs a target's page whenever a new pipeline of its ref has
// finished.
type PollUseCase struct {
	log   *zap.Logger
	ci    domain.CIClient
	sync  Syncer
	state domain.SyncState
}

func NewPollUseCase(l *zap.Logger, ci domain.CIClient, s Syncer, state domain.SyncState) *PollUseCase {
	return &PollUseCase{log: l, ci: ci, sync: s, state: state}
}

// PollOnce reports whether the page was synced.
func (uc *PollUseCase) PollOnce(ctx context.Context, t domain.Target) (bool, error) {
	raw, err := uc.ci.LatestPipeline(ctx, t.ProjectID, t.Ref)
	if err != nil {
		return false, err
	}
	p, err := domain.ParsePipelineInfo(raw)
	if err != nil {
		return false, err
	}

	log := uc.log.With(zap.String("target", t.Key()), zap.Int64("pipeline", p.ID), zap.String("status", string(p.Status)))

	if !p.Status.Finished() {
		log.Debug("pipeline not finished yet")
		return false, nil
	}
	if last, ok := uc.state.LastSynced(t.Key()); ok && last == p.ID {
		log.Debug("pipeline already synced")
		return false, nil
	}

	res, err := uc.sync.Sync(ctx, SyncRequest{
		ProjectID:  t.ProjectID,
		PipelineID: p.ID,
		Ref:        t.Ref,
		PageID:     t.PageID,
		Section:    t.Section,
	})
	if err != nil {
		return false, fmt.Errorf("sync %s: %w", t.Key(), err)
	}

	if err := uc.state.Record(ctx, t.Key(), p.ID); err != nil {
		log.Warn("state not recorded", zap.Error(err))
	}

	log.Info("synced", zap.String("section", res.Section), zap.Bool("written", res.Written))
	return true, nil
}
