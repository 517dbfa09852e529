// Package remote is the HTTP client for the remote scoring/session service.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
)

const (
	// DefaultTimeout bounds every request when no timeout is configured.
	DefaultTimeout = 8 * time.Second

	// MaxResponseSize is the maximum allowed response size (16MB).
	MaxResponseSize = 16 * 1024 * 1024

	UserAgent = "livewatch/1.0"
)

// Client talks to the remote service.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("remote")
	}
	return c
}

// ActiveSessions returns the active roster.
func (c *Client) ActiveSessions(ctx context.Context) ([]model.RosterEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/sessions/active")
	if err != nil {
		return nil, err
	}
	return parseRoster(body, model.StatusActive)
}

// CompletedSessions returns the completed roster.
func (c *Client) CompletedSessions(ctx context.Context) ([]model.RosterEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/sessions/completed")
	if err != nil {
		return nil, err
	}
	return parseRoster(body, model.StatusCompleted)
}

// Snapshot returns the raw, possibly partial, snapshot object for id.
func (c *Client) Snapshot(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	body, err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/snapshot")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: snapshot for %s is not a JSON object", ErrInvalidPayload, id)
	}
	return body, nil
}

// DeleteSession deletes id on the remote service.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	_, err := c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id))
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = resp.Status
		}
		c.log.Debug(ctx, "remote request rejected",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", resp.StatusCode))
		return nil, NewHTTPError(resp.StatusCode, u, text)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrInvalidPayload, MaxResponseSize)
	}
	return body, nil
}

// parseRoster accepts a bare array or an object wrapping it under "sessions".
func parseRoster(body []byte, status model.Status) ([]model.RosterEntry, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: roster is not valid JSON", ErrInvalidPayload)
	}
	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		list = root.Get("sessions")
		if !list.IsArray() {
			return nil, fmt.Errorf("%w: roster is neither a list nor wrapped in sessions", ErrInvalidPayload)
		}
	}

	entries := make([]model.RosterEntry, 0, len(list.Array()))
	for _, item := range list.Array() {
		id := item.Get("id").String()
		if id == "" {
			continue
		}
		e := model.RosterEntry{
			ID:     id,
			Status: status,
			Candidate: model.Candidate{
				Name:     item.Get("candidate.name").String(),
				Position: item.Get("candidate.position").String(),
				Email:    item.Get("candidate.email").String(),
			},
			Progress: model.Progress{
				Current: int(item.Get("progress.current").Int()),
				Total:   int(item.Get("progress.total").Int()),
			},
			TimeElapsed: item.Get("time_elapsed").Float(),
		}
		if fit := item.Get("overall_fit"); fit.IsObject() {
			e.OverallScore = fit.Get("score").Float()
			e.Grade = fit.Get("grade").String()
		} else {
			e.OverallScore = item.Get("overall_score").Float()
			e.Grade = item.Get("grade").String()
		}
		entries = append(entries, e)
	}
	return entries, nil
}
