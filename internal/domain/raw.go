package domain

// Raw payloads mirror the GitLab JSON. Pointer fields distinguish a missing
// value from its zero value.

type RawPipeline struct {
	ID         *int64   `json:"id"`
	Name       *string  `json:"name"`
	Status     *string  `json:"status"`
	Ref        string   `json:"ref"`
	SHA        string   `json:"sha"`
	WebURL     string   `json:"web_url"`
	Duration   *float64 `json:"duration"`
	CreatedAt  *string  `json:"created_at"`
	UpdatedAt  *string  `json:"updated_at"`
	StartedAt  *string  `json:"started_at"`
	FinishedAt *string  `json:"finished_at"`
}

type RawTestTotals struct {
	Time    float64 `json:"time"`
	Count   int     `json:"count"`
	Success int     `json:"success"`
	Failed  int     `json:"failed"`
	Skipped int     `json:"skipped"`
	Error   int     `json:"error"`
}

type RawTestSuite struct {
	Name       string  `json:"name"`
	TotalTime  float64 `json:"total_time"`
	TotalCount int     `json:"total_count"`
}

type RawTestSummary struct {
	Total      RawTestTotals  `json:"total"`
	TestSuites []RawTestSuite `json:"test_suites"`
}

// RawHistoryEntry is one item of the pipelines list endpoint. PassedTests is
// filled in separately when the history chart plots test counts.
type RawHistoryEntry struct {
	RawPipeline
	PassedTests *int `json:"-"`
}
