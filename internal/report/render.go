// Package report renders a pipeline snapshot into a Confluence storage-format
// fragment. Rendering is pure: the only clock value used is Snapshot.RenderedAt.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/davarch/ci-wiki-sync/internal/domain"
)

// MarkerAttr is carried by the element wrapping every fragment. Its value is
// the section key, which lets the merger find a previous render again.
const MarkerAttr = "data-pipeline-report"

const (
	barWidth    = 20
	placeholder = "—"
	tsLayout    = "2006-01-02 15:04"
)

const fragmentTmpl = `{{define "fragment" -}}
<div ` + MarkerAttr + `="{{.Name}}">
<p><strong>Latest Pipeline Run:</strong> {{if .Pipeline.WebURL}}<a href="{{.Pipeline.WebURL}}">#{{.Pipeline.ID}}</a>{{else}}#{{.Pipeline.ID}}{{end}} | Status: {{.Pipeline.Status}} | Duration: {{duration .Pipeline.Duration}}</p>
<p>Ref: {{if .Pipeline.Ref}}{{.Pipeline.Ref}}{{else}}` + placeholder + `{{end}} | Started: {{timestamp .Pipeline.StartedAt}} | Finished: {{timestamp .Pipeline.FinishedAt}}</p>
<h3>Test Results</h3>
{{if not .Tests -}}
<p><em>No test report is attached to this pipeline.</em></p>
{{else if eq .Tests.Total 0 -}}
<p><em>A test report is attached, but no tests were executed.</em></p>
{{else -}}
<table>
<tbody>
<tr><th>Total</th><th>Passed</th><th>Failed</th><th>Skipped</th><th>Errors</th><th>Time</th></tr>
<tr><td>{{.Tests.Total}}</td><td style="background-color: #e8f5e9;">{{.Tests.Passed}}</td><td style="background-color: #ffebee;">{{.Tests.Failed}}</td><td style="background-color: #fff3e0;">{{.Tests.Skipped}}</td><td>{{.Tests.Errors}}</td><td>{{testTime .Tests.Time}}</td></tr>
</tbody>
</table>
{{if not .Tests.Consistent}}<p><em>Note: the category counts do not add up to the total.</em></p>
{{end -}}
{{end -}}
<h3>Pipeline History (Last {{len .History.Entries}} Runs)</h3>
<p><em>Bar length: {{metric .History.Metric}}</em></p>
<pre>{{chart .History}}</pre>
<p><em>Last updated: {{.RenderedAt.Format "2006-01-02 15:04:05 MST"}}</em></p>
</div>
{{end}}`

var tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration":  FormatDuration,
	"testTime":  formatSeconds,
	"timestamp": formatTimestamp,
	"chart":     BarChart,
	"metric":    metricLabel,
}).Parse(fragmentTmpl))

// Render produces the section body for s. Upstream strings are escaped for
// their markup context, so the fragment cannot break the host document.
func Render(s domain.Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "fragment", s); err != nil {
		return "", fmt.Errorf("render %q: %w", s.Name, err)
	}
	return buf.String(), nil
}

// FormatDuration renders seconds as "1h 2m 5s", dropping zero leading units.
// Unknown and zero durations render as a placeholder, never as "0s".
func FormatDuration(seconds *int64) string {
	if seconds == nil || *seconds <= 0 {
		return placeholder
	}

	d := *seconds
	h, m, s := d/3600, (d%3600)/60, d%60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// BarChart draws one line per history entry in input order. Bars are scaled
// against the largest magnitude in this window.
func BarChart(h domain.PipelineHistory) string {
	if len(h.Entries) == 0 {
		return "No data available"
	}

	var max int64
	for _, e := range h.Entries {
		if e.Magnitude > max {
			max = e.Magnitude
		}
	}
	if max == 0 {
		max = 1
	}

	lines := make([]string, 0, len(h.Entries))
	for _, e := range h.Entries {
		n := BarLength(e.Magnitude, max)
		lines = append(lines, fmt.Sprintf("%s %-10s |%s| %d", Glyph(e.Status), e.Status, strings.Repeat("█", n), e.Magnitude))
	}

	return strings.Join(lines, "\n")
}

// BarLength scales v linearly into [0, barWidth] relative to max.
func BarLength(v, max int64) int {
	if v <= 0 || max <= 0 {
		return 0
	}
	if v >= max {
		return barWidth
	}
	return int(v * barWidth / max)
}

func Glyph(s domain.PipelineStatus) string {
	switch s {
	case domain.StatusSuccess:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	default:
		return "○"
	}
}

func formatSeconds(f float64) string {
	v := int64(math.Round(f))
	return FormatDuration(&v)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return placeholder
	}
	return t.UTC().Format(tsLayout)
}

func metricLabel(m domain.HistoryMetric) string {
	if m == domain.MetricTests {
		return "passed tests"
	}
	return "duration in seconds"
}
