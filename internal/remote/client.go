package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"
	"mapclient.gnet.app/internal/models"
	"mapclient.gnet.app/internal/report"
)

// APIKeyHeader carries the static shared secret on every request.
const APIKeyHeader = "x-api-key"

// Client talks to the remote point service.
type Client struct {
	base   string
	key    string
	hc     *http.Client
	rl     *rate.Limiter
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing point and rating requests to rps per second.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.rl = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// New creates a client for the service at base. A nil hc gets a plain client
// with a 10s timeout.
func New(base, key string, hc *http.Client, logger *slog.Logger, opts ...Option) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		key:    key,
		hc:     hc,
		rl:     rate.NewLimiter(rate.Limit(5), 5),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// APIKey returns the shared secret, needed by the scripts injected into the map page.
func (c *Client) APIKey() string { return c.key }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// FetchPoints downloads the current point list.
func (c *Client) FetchPoints(ctx context.Context) ([]models.Point, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/data", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to fetch points from %s: %w", c.base, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  report.Component("remote", "server_url", c.base),
			Level: sentry.LevelWarning,
		})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected status code from %s/api/data: %d", c.base, resp.StatusCode)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags: report.Component("remote", "server_url", c.base),
			ExtraContext: map[string]interface{}{
				"status_code": resp.StatusCode,
			},
		})
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read points payload: %w", err)
	}

	points, err := ParsePoints(body)
	if err != nil {
		err = fmt.Errorf("failed to decode points from %s: %w", c.base, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags: report.Component("remote", "server_url", c.base),
		})
		return nil, err
	}
	return points, nil
}

// SubmitRating posts rating for pointID. It reports true only when the
// service answers 2xx with a JSON body; every other outcome is false.
func (c *Client) SubmitRating(ctx context.Context, pointID string, rating int) bool {
	if err := c.rl.Wait(ctx); err != nil {
		c.logger.Warn("Rating submission cancelled", "point_id", pointID, "error", err)
		return false
	}

	payload, err := json.Marshal(map[string]int{"rating": rating})
	if err != nil {
		return false
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/rate/"+url.PathEscape(pointID), bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("Failed to build rating request", "point_id", pointID, "error", err)
		return false
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("Rating submission failed", "point_id", pointID, "rating", rating, "error", err)
		return false
	}
	defer resp.Body.Close()

	c.logger.Info("Rating submitted", "point_id", pointID, "rating", rating, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Warn("Rating response is not JSON", "point_id", pointID, "error", err)
		return false
	}
	return true
}

// Ping is the liveness probe used by the connectivity monitor: a GET against
// the data endpoint that succeeds on any 2xx. The body is drained but its
// content does not matter.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/data", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
