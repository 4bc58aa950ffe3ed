package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// ParsePipelineInfo requires id and status; every other field degrades to
// nil or its zero value.
func ParsePipelineInfo(raw *RawPipeline) (PipelineInfo, error) {
	if raw == nil {
		return PipelineInfo{}, fmt.Errorf("pipeline: empty payload: %w", ErrMalformedResponse)
	}
	if raw.ID == nil {
		return PipelineInfo{}, fmt.Errorf("pipeline: missing id: %w", ErrMalformedResponse)
	}
	if raw.Status == nil || *raw.Status == "" {
		return PipelineInfo{}, fmt.Errorf("pipeline %d: missing status: %w", *raw.ID, ErrMalformedResponse)
	}

	p := PipelineInfo{
		ID:         *raw.ID,
		Ref:        raw.Ref,
		SHA:        raw.SHA,
		Status:     MapStatus(*raw.Status),
		WebURL:     raw.WebURL,
		Duration:   seconds(raw.Duration),
		CreatedAt:  parseTime(raw.CreatedAt),
		StartedAt:  parseTime(raw.StartedAt),
		FinishedAt: parseTime(raw.FinishedAt),
	}

	switch {
	case raw.Name != nil && *raw.Name != "":
		p.Name = *raw.Name
	case raw.Ref != "":
		p.Name = raw.Ref
	default:
		p.Name = "pipeline-" + strconv.FormatInt(p.ID, 10)
	}

	return p, nil
}

// ParseTestSummary returns nil when no test report is attached to the run.
// GitLab answers with an all-zero total and no suites in that case.
func ParseTestSummary(raw *RawTestSummary) *TestSummary {
	if raw == nil {
		return nil
	}
	if len(raw.TestSuites) == 0 && raw.Total.Count == 0 {
		return nil
	}

	return &TestSummary{
		Total:   raw.Total.Count,
		Passed:  raw.Total.Success,
		Failed:  raw.Total.Failed,
		Skipped: raw.Total.Skipped,
		Errors:  raw.Total.Error,
		Time:    raw.Total.Time,
	}
}

// ParseHistory keeps the upstream order and cuts it to limit entries.
func ParseHistory(raw []RawHistoryEntry, limit int, metric HistoryMetric) PipelineHistory {
	if limit <= 0 {
		limit = DefaultHistoryCount
	}
	if metric == "" {
		metric = MetricDuration
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}

	h := PipelineHistory{Metric: metric, Entries: make([]HistoryEntry, 0, len(raw))}
	for _, r := range raw {
		e := HistoryEntry{
			Ref:    r.Ref,
			WebURL: r.WebURL,
			Status: StatusUnknown,
		}
		if r.ID != nil {
			e.ID = *r.ID
		}
		if r.Status != nil {
			e.Status = MapStatus(*r.Status)
		}

		switch metric {
		case MetricTests:
			if r.PassedTests != nil {
				e.Magnitude = int64(*r.PassedTests)
			}
		default:
			e.Magnitude = entryDuration(r.RawPipeline)
		}

		h.Entries = append(h.Entries, e)
	}

	return h
}

func MapStatus(s string) PipelineStatus {
	switch s {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "running":
		return StatusRunning
	case "pending", "created", "waiting_for_resource", "preparing", "scheduled":
		return StatusPending
	case "canceled", "cancelled":
		return StatusCanceled
	case "skipped":
		return StatusSkipped
	case "manual":
		return StatusManual
	default:
		return StatusUnknown
	}
}

func entryDuration(r RawPipeline) int64 {
	if d := seconds(r.Duration); d != nil {
		return *d
	}

	created := parseTime(r.CreatedAt)
	updated := parseTime(r.UpdatedAt)
	if created == nil || updated == nil || updated.Before(*created) {
		return 0
	}

	return int64(updated.Sub(*created) / time.Second)
}

func seconds(f *float64) *int64 {
	if f == nil || math.IsNaN(*f) || *f < 0 {
		return nil
	}
	v := int64(math.Round(*f))
	return &v
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
