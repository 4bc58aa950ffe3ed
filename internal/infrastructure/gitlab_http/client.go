package gitlab_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/ci-wiki-sync/internal/domain"
)

type Client struct {
	baseUrl    string
	token      string
	hc         *http.Client
	newBackOff func() backoff.BackOff
}

var _ domain.CIClient = (*Client)(nil)

type Option func(*Client)

// WithBackOff replaces the retry policy used for every request.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func New(baseUrl string, token string, timeout time.Duration, opts ...Option) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseUrl:    trimSlash(baseUrl),
		token:      token,
		hc:         &http.Client{Transport: tr, Timeout: timeout},
		newBackOff: defaultBackOff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 5 * time.Second
	return bo
}

func (c *Client) GetPipeline(ctx context.Context, projectID string, pipelineID int64) (*domain.RawPipeline, error) {
	var out domain.RawPipeline
	path := fmt.Sprintf("/projects/%s/pipelines/%d", url.PathEscape(projectID), pipelineID)
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("pipeline %d of project %s: %w", pipelineID, projectID, err)
	}
	return &out, nil
}

func (c *Client) GetTestSummary(ctx context.Context, projectID string, pipelineID int64) (*domain.RawTestSummary, error) {
	var out domain.RawTestSummary
	path := fmt.Sprintf("/projects/%s/pipelines/%d/test_report_summary", url.PathEscape(projectID), pipelineID)
	err := c.getJSON(ctx, path, nil, &out)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("test summary of pipeline %d: %w", pipelineID, err)
	}
	return &out, nil
}

func (c *Client) GetPipelineHistory(ctx context.Context, projectID, ref string, limit int) ([]domain.RawHistoryEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryCount
	}
	if limit > domain.MaxHistoryCount {
		limit = domain.MaxHistoryCount
	}

	q := url.Values{"per_page": {strconv.Itoa(limit)}}
	if ref != "" {
		q.Set("ref", ref)
	}

	var out []domain.RawHistoryEntry
	path := fmt.Sprintf("/projects/%s/pipelines", url.PathEscape(projectID))
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, fmt.Errorf("pipeline history of project %s: %w", projectID, err)
	}
	return out, nil
}

// LatestPipeline returns the newest pipeline of ref with its full detail.
func (c *Client) LatestPipeline(ctx context.Context, projectID, ref string) (*domain.RawPipeline, error) {
	list, err := c.GetPipelineHistory(ctx, projectID, ref, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 || list[0].ID == nil {
		return nil, fmt.Errorf("no pipelines for %s@%s: %w", projectID, ref, domain.ErrNotFound)
	}
	return c.GetPipeline(ctx, projectID, *list[0].ID)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseUrl + "/api/v4" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("PRIVATE-TOKEN", c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("gitlab: %v: %w", err, domain.ErrTransient)
		}

		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, _ := strconv.Atoi(ra); sec > 0 {
					select {
					case <-time.After(time.Duration(sec) * time.Second):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
				}
			}
			return fmt.Errorf("gitlab %s: %w", resp.Status, domain.ErrTransient)
		}

		if err := classify(resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("gitlab: decode %s: %v: %w", path, err, domain.ErrMalformedResponse))
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
}

// classify maps an HTTP status to the domain error taxonomy. Only transient
// failures are left retryable.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("gitlab %s: %w", resp.Status, domain.ErrAuth))
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("gitlab %s: %w", resp.Status, domain.ErrNotFound))
	case resp.StatusCode >= 500:
		return fmt.Errorf("gitlab %s: %w", resp.Status, domain.ErrTransient)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("gitlab %s", resp.Status))
	}
	return nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
