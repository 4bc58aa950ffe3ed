package confluence_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/ci-wiki-sync/internal/domain"
)

const versionMessage = "Updated via ci-wiki-sync"

type Client struct {
	baseUrl    string
	email      string
	token      string
	hc         *http.Client
	newBackOff func() backoff.BackOff
}

var _ domain.WikiClient = (*Client)(nil)

type Option func(*Client)

// WithBackOff replaces the retry policy used for page reads. Writes are
// never retried.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

func New(baseUrl, email, token string, timeout time.Duration, opts ...Option) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		baseUrl: trimSlash(baseUrl),
		email:   email,
		token:   token,
		hc:      &http.Client{Transport: tr, Timeout: timeout},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 300 * time.Millisecond
			bo.MaxInterval = 2 * time.Second
			bo.MaxElapsedTime = 5 * time.Second
			return bo
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type storageDTO struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type versionDTO struct {
	Number  int    `json:"number"`
	Message string `json:"message,omitempty"`
}

type contentDTO struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  struct {
		Storage storageDTO `json:"storage"`
	} `json:"body"`
	Version versionDTO `json:"version"`
}

func (c *Client) GetPage(ctx context.Context, pageID string) (domain.Page, error) {
	u := fmt.Sprintf("%s/rest/api/content/%s?%s", c.baseUrl, url.PathEscape(pageID),
		url.Values{"expand": {"body.storage,version"}}.Encode())

	var dto contentDTO
	op := func() error {
		resp, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := classify(resp, false); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
			return backoff.Permanent(fmt.Errorf("confluence: decode page %s: %v: %w", pageID, err, domain.ErrMalformedResponse))
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return domain.Page{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	if dto.Version.Number == 0 {
		return domain.Page{}, fmt.Errorf("get page %s: missing version: %w", pageID, domain.ErrMalformedResponse)
	}

	return domain.Page{
		ID:      pageID,
		Title:   dto.Title,
		Body:    dto.Body.Storage.Value,
		Version: dto.Version.Number,
	}, nil
}

// UpdatePage writes version p.Version+1. Confluence rejects the write with a
// conflict when the stored version is no longer p.Version.
func (c *Client) UpdatePage(ctx context.Context, p domain.Page) error {
	dto := contentDTO{ID: p.ID, Type: "page", Title: p.Title}
	dto.Body.Storage = storageDTO{Value: p.Body, Representation: "storage"}
	dto.Version = versionDTO{Number: p.Version + 1, Message: versionMessage}

	b, err := json.Marshal(dto)
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/rest/api/content/%s", c.baseUrl, url.PathEscape(p.ID))
	resp, err := c.do(ctx, http.MethodPut, u, b)
	if err != nil {
		return fmt.Errorf("update page %s: %w", p.ID, unwrapPermanent(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classify(resp, true); err != nil {
		return fmt.Errorf("update page %s at version %d: %w", p.ID, p.Version, unwrapPermanent(err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("confluence: %v: %w", err, domain.ErrTransient)
	}
	return resp, nil
}

func classify(resp *http.Response, write bool) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("confluence %s: %w", resp.Status, domain.ErrAuth))
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("confluence %s: %w", resp.Status, domain.ErrNotFound))
	case write && resp.StatusCode == http.StatusConflict:
		return backoff.Permanent(fmt.Errorf("confluence %s: %w", resp.Status, domain.ErrConcurrentModification))
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("confluence %s: %w", resp.Status, domain.ErrTransient)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("confluence %s", resp.Status))
	}
	return nil
}

func unwrapPermanent(err error) error {
	if p, ok := err.(*backoff.PermanentError); ok {
		return p.Err
	}
	return err
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
