// Copyright 2026 Rover Data Systems (roverdata.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roverdata/telesql/internal/config"
	"github.com/roverdata/telesql/internal/metrics"
)

// PageCeiling caps how many rows a single list scan will pull from the API.
// Results at the ceiling are flagged as possibly truncated.
const PageCeiling = 2000

// pageSize is the per-request limit for offset-paginated endpoints.
const pageSize = 500

// Client talks to the recording API. The key is resolved once at
// construction; an empty key fails every call with AuthError on first use.
type Client struct {
	baseURL     string
	key         string
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewClient(cfg config.APIConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		key:         cfg.Key,
		http:        &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		maxAttempts: cfg.MaxAttempts,
		backoff:     time.Duration(cfg.BackoffMillis) * time.Millisecond,
		logger:      logger,
	}
}

// do issues one request with the retry schedule. Transport errors and 5xx
// responses retry with exponential backoff; 401/403 map to AuthError and
// other 4xx responses are terminal.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body []byte) ([]byte, error) {
	if c.key == "" {
		return nil, &AuthError{}
	}
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.APIRetries.WithLabelValues(endpoint).Inc()
			wait := c.backoff << (attempt - 2)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		metrics.APIRequests.WithLabelValues(endpoint).Inc()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			lastErr = err
			c.logger.Warn("api request failed", "endpoint", endpoint, "attempt", attempt, "error", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			lastErr = err
			continue
		}
		metrics.APIBytes.Add(float64(len(data)))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &AuthError{Status: resp.StatusCode, Detail: trimBody(data)}
		case resp.StatusCode >= 500:
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			lastErr = &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: trimBody(data)}
			c.logger.Warn("api server error", "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt)
			continue
		default:
			return nil, &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Body: trimBody(data)}
		}
	}
	return nil, &TransientNetworkError{Endpoint: endpoint, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// listPaged walks an offset-paginated endpoint until the page comes up
// short or the ceiling is hit. The second return reports possible
// truncation: the ceiling was reached and the final page was full.
func listPaged[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, bool, error) {
	var all []T
	offset := 0
	for {
		limit := pageSize
		if remaining := PageCeiling - len(all); remaining < limit {
			limit = remaining
		}
		q := cloneValues(params)
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))

		var page []T
		if err := c.getJSON(ctx, endpoint, q, &page); err != nil {
			return nil, false, err
		}
		all = append(all, page...)
		offset += len(page)
		if len(page) < limit {
			return all, false, nil
		}
		if len(all) >= PageCeiling {
			metrics.Truncations.WithLabelValues(strings.TrimPrefix(endpoint, "/")).Inc()
			return all, true, nil
		}
	}
}

func (c *Client) ListDevices(ctx context.Context, params url.Values) ([]Device, bool, error) {
	return listPaged[Device](ctx, c, "/devices", params)
}

func (c *Client) ListRecordings(ctx context.Context, params url.Values) ([]Recording, bool, error) {
	return listPaged[Recording](ctx, c, "/recordings", params)
}

func (c *Client) ListAttachments(ctx context.Context, params url.Values) ([]Attachment, bool, error) {
	return listPaged[Attachment](ctx, c, "/recording-attachments", params)
}

func (c *Client) ListEvents(ctx context.Context, params url.Values) ([]Event, bool, error) {
	return listPaged[Event](ctx, c, "/events", params)
}

func (c *Client) ListTopics(ctx context.Context, params url.Values) ([]Topic, bool, error) {
	return listPaged[Topic](ctx, c, "/data/topics", params)
}

type coveragePage struct {
	Items      []CoverageRange `json:"items"`
	NextCursor string          `json:"nextCursor"`
}

// Coverage walks the cursor-paginated coverage endpoint to exhaustion.
// Unlike the offset endpoints it has no row ceiling: ranges are merged
// locally, so the full set is required for a correct answer.
func (c *Client) Coverage(ctx context.Context, params url.Values) ([]CoverageRange, error) {
	var all []CoverageRange
	cursor := ""
	for {
		q := cloneValues(params)
		q.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page coveragePage
		if err := c.getJSON(ctx, "/data/coverage", q, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// StreamLink requests a message export and returns the download link.
func (c *Client) StreamLink(ctx context.Context, req StreamRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode stream request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/data/stream", nil, body)
	if err != nil {
		return "", err
	}
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode stream response: %w", err)
	}
	if resp.Link == "" {
		return "", fmt.Errorf("stream response carried no link")
	}
	return resp.Link, nil
}

// Download fetches a pre-signed export link. The link already embeds its
// authorization, so no bearer header is attached.
func (c *Client) Download(ctx context.Context, link string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Endpoint: "download", Attempts: 1, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Endpoint: "download", Status: resp.StatusCode, Body: trimBody(body)}
	}
	return resp.Body, nil
}

func cloneValues(in url.Values) url.Values {
	out := make(url.Values, len(in)+2)
	for k, vs := range in {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func trimBody(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
