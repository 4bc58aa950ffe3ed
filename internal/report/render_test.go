package report

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/davarch/ci-wiki-sync/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T { return &v }

var renderedAt = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func scenario() domain.Snapshot {
	return domain.Snapshot{
		Name: "my-pipeline",
		Pipeline: domain.PipelineInfo{
			ID:       12345,
			Name:     "my-pipeline",
			Ref:      "main",
			Status:   domain.StatusSuccess,
			WebURL:   "https://gitlab.example.com/group/project/-/pipelines/12345",
			Duration: ptr(int64(150)),
		},
		Tests: &domain.TestSummary{Total: 150, Passed: 148, Skipped: 2, Time: 42},
		History: domain.PipelineHistory{
			Metric: domain.MetricDuration,
			Entries: []domain.HistoryEntry{
				{ID: 12345, Status: domain.StatusSuccess, Magnitude: 150},
				{ID: 12344, Status: domain.StatusFailed, Magnitude: 90},
				{ID: 12343, Status: domain.StatusCanceled, Magnitude: 30},
			},
		},
		RenderedAt: renderedAt,
	}
}

func mustRender(t *testing.T, s domain.Snapshot) string {
	t.Helper()
	out, err := Render(s)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func parse(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	return doc
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   *int64
		want string
	}{
		{nil, "—"},
		{ptr(int64(0)), "—"},
		{ptr(int64(30)), "30s"},
		{ptr(int64(150)), "2m 30s"},
		{ptr(int64(3725)), "1h 2m 5s"},
		{ptr(int64(3600)), "1h 0m 0s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	a := mustRender(t, scenario())
	b := mustRender(t, scenario())
	if a != b {
		t.Fatalf("render is not deterministic:\n%s", cmp.Diff(a, b))
	}
}

func TestRender_Scenario(t *testing.T) {
	out := mustRender(t, scenario())

	for _, want := range []string{"2m 30s", "148", "150", "Last updated: 2024-01-15 14:30:00 UTC"} {
		if !strings.Contains(out, want) {
			t.Errorf("fragment does not contain %q:\n%s", want, out)
		}
	}

	doc := parse(t, out)
	cells := doc.Find("table tr td").Map(func(_ int, s *goquery.Selection) string { return s.Text() })
	if diff := cmp.Diff([]string{"150", "148", "0", "2", "0", "42s"}, cells); diff != "" {
		t.Errorf("table cells (-want +got):\n%s", diff)
	}
	if n := doc.Find("table th").Length(); n != 6 {
		t.Errorf("expected 6 columns, got %d", n)
	}

	rows := strings.Split(doc.Find("pre").Text(), "\n")
	if len(rows) != 3 {
		t.Fatalf("expected 3 history rows, got %d: %q", len(rows), rows)
	}
	for i, prefix := range []string{"✓ success", "✗ failed", "○ canceled"} {
		if !strings.HasPrefix(rows[i], prefix) {
			t.Errorf("row %d: expected prefix %q, got %q", i, prefix, rows[i])
		}
	}

	marker, ok := doc.Find("div").First().Attr(MarkerAttr)
	if !ok || marker != "my-pipeline" {
		t.Errorf("expected marker attribute with section key, got %q (present=%v)", marker, ok)
	}
	if doc.Find("h1, h2").Length() != 0 {
		t.Errorf("fragment must not contain section-level headings")
	}
}

func TestRender_AbsentSummaryIsNotAZeroTable(t *testing.T) {
	s := scenario()
	s.Tests = nil
	absent := mustRender(t, s)

	s.Tests = &domain.TestSummary{}
	empty := mustRender(t, s)

	if strings.Contains(absent, "<table>") || strings.Contains(empty, "<table>") {
		t.Fatalf("no table expected without executed tests")
	}
	if !strings.Contains(absent, "No test report is attached") {
		t.Errorf("missing absent-report message:\n%s", absent)
	}
	if !strings.Contains(empty, "no tests were executed") {
		t.Errorf("missing no-tests message:\n%s", empty)
	}
	if absent == empty {
		t.Errorf("absent and empty summaries must render differently")
	}
}

func TestRender_InconsistentSummaryNoted(t *testing.T) {
	s := scenario()
	s.Tests = &domain.TestSummary{Total: 10, Passed: 3}
	if out := mustRender(t, s); !strings.Contains(out, "do not add up") {
		t.Errorf("expected inconsistency note:\n%s", out)
	}
	if out := mustRender(t, scenario()); strings.Contains(out, "do not add up") {
		t.Errorf("consistent summary flagged")
	}
}

func TestRender_EscapesUpstreamStrings(t *testing.T) {
	s := scenario()
	s.Name = `evil"><h2>x</h2>`
	s.Pipeline.Ref = "<script>alert(1)</script>"

	out := mustRender(t, s)
	if strings.Contains(out, "<h2>") || strings.Contains(out, "<script>") {
		t.Fatalf("unescaped markup in fragment:\n%s", out)
	}

	marker, _ := parse(t, out).Find("div").First().Attr(MarkerAttr)
	if marker != s.Name {
		t.Errorf("marker should round-trip the raw key, got %q", marker)
	}
}

func TestRender_NullDurationPlaceholder(t *testing.T) {
	s := scenario()
	s.Pipeline.Duration = nil
	s.Pipeline.Status = domain.StatusRunning
	out := mustRender(t, s)
	if !strings.Contains(out, "Duration: —") {
		t.Errorf("expected placeholder duration:\n%s", out)
	}
	if strings.Contains(out, "Duration: 0s") {
		t.Errorf("null duration rendered as 0s")
	}
}

func TestBarChart_Normalization(t *testing.T) {
	h := domain.PipelineHistory{Entries: []domain.HistoryEntry{
		{Status: domain.StatusSuccess, Magnitude: 50},
		{Status: domain.StatusSuccess, Magnitude: 100},
		{Status: domain.StatusFailed, Magnitude: 25},
	}}

	lines := strings.Split(BarChart(h), "\n")
	got := make([]int, len(lines))
	for i, l := range lines {
		got[i] = strings.Count(l, "█")
	}
	if diff := cmp.Diff([]int{10, 20, 5}, got); diff != "" {
		t.Errorf("bar lengths (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(lines[1], "| 100") {
		t.Errorf("raw magnitude missing: %q", lines[1])
	}
}

func TestBarChart_ScaleIndependent(t *testing.T) {
	small := BarChart(domain.PipelineHistory{Entries: []domain.HistoryEntry{{Magnitude: 2}, {Magnitude: 1}}})
	large := BarChart(domain.PipelineHistory{Entries: []domain.HistoryEntry{{Magnitude: 2000}, {Magnitude: 1000}}})
	if strings.Count(small, "█") != strings.Count(large, "█") {
		t.Errorf("bars should use the full width regardless of scale")
	}
}

func TestBarChart_EmptyAndZero(t *testing.T) {
	if got := BarChart(domain.PipelineHistory{}); got != "No data available" {
		t.Errorf("got %q", got)
	}
	zero := BarChart(domain.PipelineHistory{Entries: []domain.HistoryEntry{{Status: domain.StatusUnknown}}})
	if strings.Contains(zero, "█") || !strings.HasPrefix(zero, "○ unknown") {
		t.Errorf("got %q", zero)
	}
}
