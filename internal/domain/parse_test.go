package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T { return &v }

func TestParsePipelineInfo_RequiredFields(t *testing.T) {
	cases := []struct {
		name string
		raw  *RawPipeline
	}{
		{name: "nil payload", raw: nil},
		{name: "missing id", raw: &RawPipeline{Status: ptr("success")}},
		{name: "missing status", raw: &RawPipeline{ID: ptr(int64(1))}},
		{name: "empty status", raw: &RawPipeline{ID: ptr(int64(1)), Status: ptr("")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePipelineInfo(tc.raw)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestParsePipelineInfo_OptionalFieldsDegrade(t *testing.T) {
	raw := &RawPipeline{
		ID:        ptr(int64(12345)),
		Status:    ptr("running"),
		Ref:       "main",
		CreatedAt: ptr("not a timestamp"),
		StartedAt: ptr("2024-01-15T14:30:00Z"),
	}

	p, err := ParsePipelineInfo(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Duration != nil {
		t.Errorf("expected nil duration while running, got %d", *p.Duration)
	}
	if p.CreatedAt != nil {
		t.Errorf("expected unparseable created_at to degrade to nil")
	}
	if p.StartedAt == nil || p.StartedAt.Hour() != 14 {
		t.Errorf("started_at not parsed: %v", p.StartedAt)
	}
	if p.FinishedAt != nil {
		t.Errorf("expected nil finished_at")
	}
	if p.Name != "main" {
		t.Errorf("expected name to fall back to ref, got %q", p.Name)
	}
	if p.Status != StatusRunning {
		t.Errorf("expected running, got %s", p.Status)
	}
}

func TestParsePipelineInfo_NameFallbacks(t *testing.T) {
	p, err := ParsePipelineInfo(&RawPipeline{ID: ptr(int64(7)), Status: ptr("success"), Name: ptr("nightly")})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "nightly" {
		t.Errorf("got %q", p.Name)
	}

	p, err = ParsePipelineInfo(&RawPipeline{ID: ptr(int64(7)), Status: ptr("success")})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "pipeline-7" {
		t.Errorf("got %q", p.Name)
	}
}

func TestParsePipelineInfo_DurationRounded(t *testing.T) {
	p, err := ParsePipelineInfo(&RawPipeline{ID: ptr(int64(1)), Status: ptr("success"), Duration: ptr(149.6)})
	if err != nil {
		t.Fatal(err)
	}
	if p.Duration == nil || *p.Duration != 150 {
		t.Fatalf("expected 150, got %v", p.Duration)
	}
}

func TestParseTestSummary_AbsentVersusZero(t *testing.T) {
	if s := ParseTestSummary(nil); s != nil {
		t.Errorf("nil payload must be absent, got %+v", s)
	}
	if s := ParseTestSummary(&RawTestSummary{}); s != nil {
		t.Errorf("no suites and zero count must be absent, got %+v", s)
	}

	zero := ParseTestSummary(&RawTestSummary{TestSuites: []RawTestSuite{{Name: "unit"}}})
	if zero == nil {
		t.Fatal("a report with suites must be present even with zero tests")
	}
	if zero.Total != 0 {
		t.Errorf("expected zero total, got %d", zero.Total)
	}
}

func TestParseTestSummary_Counts(t *testing.T) {
	raw := &RawTestSummary{
		Total: RawTestTotals{Time: 12.5, Count: 150, Success: 148, Skipped: 2},
		TestSuites: []RawTestSuite{{Name: "unit", TotalCount: 150}},
	}

	got := ParseTestSummary(raw)
	want := &TestSummary{Total: 150, Passed: 148, Skipped: 2, Time: 12.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if !got.Consistent() {
		t.Errorf("expected consistent summary")
	}
}

func TestParseHistory_TruncatesKeepingOrder(t *testing.T) {
	raw := make([]RawHistoryEntry, 25)
	for i := range raw {
		raw[i] = RawHistoryEntry{RawPipeline: RawPipeline{ID: ptr(int64(100 - i)), Status: ptr("success")}}
	}

	h := ParseHistory(raw, 10, MetricDuration)
	if len(h.Entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(h.Entries))
	}
	for i, e := range h.Entries {
		if e.ID != int64(100-i) {
			t.Errorf("entry %d: expected id %d, got %d", i, 100-i, e.ID)
		}
	}
}

func TestParseHistory_DefaultLimit(t *testing.T) {
	raw := make([]RawHistoryEntry, 12)
	if got := len(ParseHistory(raw, 0, "").Entries); got != DefaultHistoryCount {
		t.Fatalf("expected %d entries, got %d", DefaultHistoryCount, got)
	}
}

func TestParseHistory_UnknownStatusKept(t *testing.T) {
	raw := []RawHistoryEntry{
		{RawPipeline: RawPipeline{ID: ptr(int64(3)), Status: ptr("success")}},
		{RawPipeline: RawPipeline{ID: ptr(int64(2)), Status: ptr("exploded")}},
		{RawPipeline: RawPipeline{ID: ptr(int64(1))}},
	}

	h := ParseHistory(raw, 10, MetricDuration)
	got := []PipelineStatus{h.Entries[0].Status, h.Entries[1].Status, h.Entries[2].Status}
	want := []PipelineStatus{StatusSuccess, StatusUnknown, StatusUnknown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHistory_Magnitudes(t *testing.T) {
	raw := []RawHistoryEntry{
		{RawPipeline: RawPipeline{ID: ptr(int64(3)), Status: ptr("success"), Duration: ptr(90.0)}, PassedTests: ptr(40)},
		{RawPipeline: RawPipeline{
			ID:        ptr(int64(2)),
			Status:    ptr("failed"),
			CreatedAt: ptr("2024-01-15T14:30:00Z"),
			UpdatedAt: ptr("2024-01-15T14:32:30Z"),
		}},
		{RawPipeline: RawPipeline{ID: ptr(int64(1)), Status: ptr("success")}},
	}

	byDuration := ParseHistory(raw, 10, MetricDuration)
	if diff := cmp.Diff([]int64{90, 150, 0}, magnitudes(byDuration)); diff != "" {
		t.Errorf("duration magnitudes (-want +got):\n%s", diff)
	}

	byTests := ParseHistory(raw, 10, MetricTests)
	if diff := cmp.Diff([]int64{40, 0, 0}, magnitudes(byTests)); diff != "" {
		t.Errorf("test magnitudes (-want +got):\n%s", diff)
	}
}

func TestPipelineStatus_Finished(t *testing.T) {
	if !StatusFailed.Finished() || !StatusSuccess.Finished() {
		t.Error("terminal statuses must be finished")
	}
	if StatusRunning.Finished() || StatusPending.Finished() || StatusManual.Finished() {
		t.Error("in-flight statuses must not be finished")
	}
}

func magnitudes(h PipelineHistory) []int64 {
	out := make([]int64, 0, len(h.Entries))
	for _, e := range h.Entries {
		out = append(out, e.Magnitude)
	}
	return out
}
