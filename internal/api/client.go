package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrAPIUnavailable reports that no daemon answered at the configured bind.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Error is a non-2xx response decoded from an ErrorResponse body.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
	Hint       string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s, status %d)", msg, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for bind, which may omit the scheme. An empty
// bind yields a nil client whose calls return ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ProcessVideo queues a video processing run and returns its id.
func (c *Client) ProcessVideo(ctx context.Context, req ProcessVideoRequest) (string, error) {
	var resp RunSubmittedResponse
	if err := c.do(ctx, http.MethodPost, "/api/videos", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// GenerateReport queues a report generation run and returns its id.
func (c *Client) GenerateReport(ctx context.Context, req GenerateReportRequest) (string, error) {
	var resp RunSubmittedResponse
	if err := c.do(ctx, http.MethodPost, "/api/reports", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// GetRun fetches one run including its context.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var resp RunResponse
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), nil, nil, &resp)
	return resp.Run, err
}

// ListRuns lists runs, optionally filtered by status.
func (c *Client) ListRuns(ctx context.Context, statuses ...string) ([]Run, error) {
	values := url.Values{}
	for _, status := range statuses {
		if status = strings.TrimSpace(status); status != "" {
			values.Add("status", status)
		}
	}
	var resp RunListResponse
	err := c.do(ctx, http.MethodGet, "/api/runs", values, nil, &resp)
	return resp.Runs, err
}

// CancelRun requests cancellation of a run.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/cancel", nil, nil, nil)
}

// ListVideos pages through stored videos, newest first.
func (c *Client) ListVideos(ctx context.Context, limit, offset int) ([]Video, error) {
	var resp VideoListResponse
	err := c.do(ctx, http.MethodGet, "/api/videos", pageValues(limit, offset), nil, &resp)
	return resp.Videos, err
}

// GetVideo fetches a video with its segments.
func (c *Client) GetVideo(ctx context.Context, id int64) (Video, error) {
	var resp VideoResponse
	err := c.do(ctx, http.MethodGet, "/api/videos/"+strconv.FormatInt(id, 10), nil, nil, &resp)
	return resp.Video, err
}

// DeleteVideo removes a video together with its segments and reports.
func (c *Client) DeleteVideo(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/videos/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// ReportQuery filters ListReports. Zero values match everything.
type ReportQuery struct {
	VideoID    int64
	FormatType string
	Limit      int
	Offset     int
}

// ListReports lists stored reports.
func (c *Client) ListReports(ctx context.Context, q ReportQuery) ([]Report, error) {
	values := pageValues(q.Limit, q.Offset)
	if q.VideoID > 0 {
		values.Set("video_id", strconv.FormatInt(q.VideoID, 10))
	}
	if strings.TrimSpace(q.FormatType) != "" {
		values.Set("format_type", strings.TrimSpace(q.FormatType))
	}
	var resp ReportListResponse
	err := c.do(ctx, http.MethodGet, "/api/reports", values, nil, &resp)
	return resp.Reports, err
}

// GetReport fetches a report with its content.
func (c *Client) GetReport(ctx context.Context, id int64) (Report, error) {
	var resp ReportResponse
	err := c.do(ctx, http.MethodGet, "/api/reports/"+strconv.FormatInt(id, 10), nil, nil, &resp)
	return resp.Report, err
}

// DeleteReport removes a report.
func (c *Client) DeleteReport(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/reports/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
			apiErr.Hint = payload.Hint
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func pageValues(limit, offset int) url.Values {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	return values
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
