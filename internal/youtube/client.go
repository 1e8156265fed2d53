package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/logging"
	"ytreport/internal/services"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20
)

// Metadata describes a video as shown on its watch page.
type Metadata struct {
	VideoID         string     `json:"video_id"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	ChannelName     string     `json:"channel_name,omitempty"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
}

// Client talks to YouTube over HTTP.
type Client struct {
	baseURL    *url.URL
	userAgent  string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client from the [youtube] configuration section.
func NewClient(cfg config.YouTube, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("youtube: parse base url: %w", err)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    base,
		userAgent:  strings.TrimSpace(cfg.UserAgent),
		language:   strings.TrimSpace(cfg.Language),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Language returns the default transcript language.
func (c *Client) Language() string {
	return c.language
}

// FetchTranscript returns the transcript of videoRef, preferring lang (or the
// configured default when lang is empty).
func (c *Client) FetchTranscript(ctx context.Context, videoRef, lang string) (*Transcript, error) {
	const op = "fetch transcript"
	id, err := ExtractVideoID(videoRef)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(lang) == "" {
		lang = c.language
	}
	page, err := c.fetchWatchPage(ctx, id, lang)
	if err != nil {
		return nil, err
	}
	if err := checkPlayable(op, id, page.player); err != nil {
		return nil, err
	}
	if page.player.Captions == nil || len(page.player.Captions.Tracklist.Tracks) == 0 {
		return nil, services.Wrap(services.ErrDisabled, "", op, "captions are disabled for video "+id, nil)
	}
	track, _ := selectTrack(page.player.Captions.Tracklist.Tracks, lang)
	c.logger.Debug("caption track selected",
		logging.String("video_id", id),
		logging.String("language", track.LanguageCode),
		logging.Bool("generated", track.generated()),
		logging.String("requested_language", lang),
	)

	trackURL, err := c.resolve(track.BaseURL)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstreamRejected, "", op, "invalid caption url", err)
	}
	body, err := c.get(ctx, op, trackURL, lang)
	if err != nil {
		return nil, err
	}
	entries, err := parseTimedText(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrUpstreamRejected, "", op, "unreadable caption track", err)
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "", op, "transcript is empty for video "+id, nil)
	}
	return &Transcript{
		VideoID:   id,
		Language:  track.LanguageCode,
		Generated: track.generated(),
		Entries:   entries,
	}, nil
}

// FetchMetadata returns title, channel, duration and publish date.
func (c *Client) FetchMetadata(ctx context.Context, videoRef string) (*Metadata, error) {
	const op = "fetch metadata"
	id, err := ExtractVideoID(videoRef)
	if err != nil {
		return nil, err
	}
	page, err := c.fetchWatchPage(ctx, id, c.language)
	if err != nil {
		return nil, err
	}
	if page.player.PlayabilityStatus.Status == "ERROR" {
		return nil, services.Wrap(services.ErrNotFound, "", op, unplayableReason(id, page.player), nil)
	}
	details := page.player.VideoDetails
	meta := &Metadata{
		VideoID:     id,
		Title:       firstNonEmpty(details.Title, page.meta["og:title"], page.meta["title"]),
		URL:         WatchURL(id),
		ChannelName: firstNonEmpty(details.Author, page.meta["author"]),
	}
	if seconds, err := strconv.Atoi(details.LengthSeconds); err == nil {
		meta.DurationSeconds = seconds
	}
	published := firstNonEmpty(
		page.player.Microformat.Renderer.PublishDate,
		page.player.Microformat.Renderer.UploadDate,
		page.meta["datePublished"],
	)
	if t, ok := parsePublishDate(published); ok {
		meta.PublishedAt = &t
	}
	if meta.Title == "" {
		return nil, services.Wrap(services.ErrUpstreamRejected, "", op, "watch page has no title for video "+id, nil)
	}
	return meta, nil
}

// HealthCheck verifies YouTube is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.get(ctx, "youtube health", c.baseURL.String(), c.language)
	return err
}

func (c *Client) fetchWatchPage(ctx context.Context, id, lang string) (*watchPage, error) {
	const op = "fetch watch page"
	watch, err := c.resolve("/watch?v=" + url.QueryEscape(id))
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, op, watch, lang)
	if err != nil {
		return nil, err
	}
	page, err := parseWatchPage(bytes.NewReader(body))
	if err != nil {
		if page != nil && page.botChallenge {
			return nil, services.Wrap(services.ErrRateLimited, "", op, "bot check served for video "+id, nil)
		}
		return nil, services.Wrap(services.ErrUnavailable, "", op, "unreadable watch page for video "+id, err)
	}
	return page, nil
}

func checkPlayable(op, id string, player *playerResponse) error {
	status := player.PlayabilityStatus.Status
	reason := strings.ToLower(player.PlayabilityStatus.Reason)
	switch status {
	case "", "OK":
		return nil
	case "ERROR":
		return services.Wrap(services.ErrNotFound, "", op, unplayableReason(id, player), nil)
	case "LOGIN_REQUIRED":
		if strings.Contains(reason, "bot") {
			return services.Wrap(services.ErrRateLimited, "", op, unplayableReason(id, player), nil)
		}
		return services.Wrap(services.ErrNotFound, "", op, unplayableReason(id, player), nil)
	default:
		return services.Wrap(services.ErrDisabled, "", op, unplayableReason(id, player), nil)
	}
}

func unplayableReason(id string, player *playerResponse) string {
	reason := strings.TrimSpace(player.PlayabilityStatus.Reason)
	if reason == "" {
		reason = strings.ToLower(player.PlayabilityStatus.Status)
	}
	return fmt.Sprintf("video %s is unavailable: %s", id, reason)
}

func parsePublishDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (c *Client) resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return c.baseURL.ResolveReference(parsed).String(), nil
}

func (c *Client) get(ctx context.Context, op, target, lang string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "", op, "build request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, services.Wrap(statusMarker(resp.StatusCode), "", op, fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return body, nil
}

func classifyTransport(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, "", op, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "", op, "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "", op, "", err)
	}
	return services.Wrap(services.ErrUnavailable, "", op, "", err)
}

func statusMarker(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return services.ErrNotFound
	case code == http.StatusTooManyRequests:
		return services.ErrRateLimited
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return services.ErrTimeout
	case code >= http.StatusInternalServerError:
		return services.ErrUnavailable
	default:
		return services.ErrUpstreamRejected
	}
}
