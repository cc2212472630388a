// Package upstream is a typed client for the security-operations analytics API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/blazereport/internal/metrics"
	"github.com/good-yellow-bee/blazereport/pkg/config"
)

// API paths.
const (
	pathTeam          = "/team"
	pathTeamStats     = "/team/statistics"
	pathTeamSwitch    = "/team/switch"
	pathTeamSearch    = "/team/search"
	pathPlatformLogos = "/team/platform-logos"
	pathCases         = "/cases"
	pathCaseSeverity  = "/cases/stats/severity"
	pathDetections    = "/detection"
)

// metricPaths maps each duration metric to its endpoint.
var metricPaths = map[MetricKind]string{
	MeanTimeToRespond: "/cases/mttr",
	MeanTimeToContain: "/cases/mttc",
	MeanTimeToDetect:  "/detection/mttd",
	MeanTimeToVerdict: "/detection/mttv",
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// DefaultBaseURL is the public analytics API.
const DefaultBaseURL = "https://api.wirespeed.co"

// Config holds client settings shared by every credential.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables client-side limiting
	Burst             int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 20,
		Burst:             40,
	}
}

// Client calls the analytics API with one bearer credential. A Client is safe
// for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a client bound to token.
func New(cfg Config, token string) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// WithToken returns a client for another credential that shares this
// client's transport and rate limiter.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// GetProfile returns the team the credential belongs to.
func (c *Client) GetProfile(ctx context.Context) (*Team, error) {
	var team Team
	if err := c.do(ctx, "profile", http.MethodGet, pathTeam, nil, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

type daysBody struct {
	Days int `json:"days"`
}

// GetStatistics returns the team counters for the last days.
func (c *Client) GetStatistics(ctx context.Context, days int) (*Statistics, error) {
	var stats Statistics
	if err := c.do(ctx, "statistics", http.MethodPost, pathTeamStats, daysBody{Days: days}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetCaseSeverityCounts returns case counts per severity for the last days.
func (c *Client) GetCaseSeverityCounts(ctx context.Context, days int) ([]SeverityCount, error) {
	var counts []SeverityCount
	if err := c.do(ctx, "case_severity", http.MethodPost, pathCaseSeverity, daysBody{Days: days}, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// GetDurationMetric returns one mean-time metric for the last days.
func (c *Client) GetDurationMetric(ctx context.Context, kind MetricKind, days int) (*DurationMetric, error) {
	path, ok := metricPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown duration metric %q", kind)
	}
	var m DurationMetric
	if err := c.do(ctx, string(kind), http.MethodPost, path, daysBody{Days: days}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetCases searches cases.
func (c *Client) GetCases(ctx context.Context, filter SearchFilter) (*Cases, error) {
	var cases Cases
	if err := c.do(ctx, "cases", http.MethodPost, pathCases, filter, &cases); err != nil {
		return nil, err
	}
	return &cases, nil
}

// GetDetections searches detections.
func (c *Client) GetDetections(ctx context.Context, filter SearchFilter) (*Detections, error) {
	var detections Detections
	if err := c.do(ctx, "detections", http.MethodPost, pathDetections, filter, &detections); err != nil {
		return nil, err
	}
	return &detections, nil
}

// GetAssetsForDetection returns the endpoints and identities a detection touched.
func (c *Client) GetAssetsForDetection(ctx context.Context, detectionID string) (*Assets, error) {
	if detectionID == "" {
		return nil, errors.New("detection id is required")
	}
	var assets Assets
	path := pathDetections + "/" + url.PathEscape(detectionID) + "/assets"
	if err := c.do(ctx, "assets", http.MethodGet, path, nil, &assets); err != nil {
		return nil, err
	}
	return &assets, nil
}

// SwitchTenant exchanges the credential for one scoped to teamID.
func (c *Client) SwitchTenant(ctx context.Context, teamID string) (string, error) {
	if teamID == "" {
		return "", errors.New("team id is required")
	}
	var res SwitchResult
	body := map[string]string{"teamId": teamID}
	if err := c.do(ctx, "switch", http.MethodPost, pathTeamSwitch, body, &res); err != nil {
		return "", err
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("switch to team %s returned no access token", teamID)
	}
	return res.AccessToken, nil
}

// GetPlatformLogos returns platform branding assets.
func (c *Client) GetPlatformLogos(ctx context.Context) (*PlatformLogos, error) {
	var logos PlatformLogos
	if err := c.do(ctx, "platform_logos", http.MethodGet, pathPlatformLogos, nil, &logos); err != nil {
		return nil, err
	}
	return &logos, nil
}

// SearchTenants lists the tenants a service provider manages.
func (c *Client) SearchTenants(ctx context.Context, filter SearchFilter) (*TeamSearch, error) {
	var res TeamSearch
	if err := c.do(ctx, "team_search", http.MethodPost, pathTeamSearch, filter, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do sends one request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit: %w", op, err)
		}
	}

	start := time.Now()
	status := "error"
	defer func() {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, status).Inc()
		metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: %w", op, parseAPIError(resp.StatusCode, data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
