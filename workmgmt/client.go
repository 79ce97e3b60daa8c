package workmgmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized is returned when the API rejects the key (401/403).
	ErrUnauthorized = errors.New("work management api: unauthorized")
	// ErrNotConfigured is returned by a nil client or one without a key.
	ErrNotConfigured = errors.New("work management api: no api key configured")

	ErrUnknownResource = errors.New("work management api: unknown resource")
)

type Resource string

const (
	Goals        Resource = "goals"
	Tasks        Resource = "tasks"
	Feedback     Resource = "feedback"
	Recognitions Resource = "recognitions"
	Users        Resource = "users"
	Reviews      Resource = "reviews"
)

var paths = map[Resource]string{
	Goals:        "/goal/getGoals",
	Tasks:        "/task/getTasks",
	Feedback:     "/feedback/getFeedbacks",
	Recognitions: "/recognition/getRecognitions",
	Users:        "/user/getUsers",
	Reviews:      "/review",
}

func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := paths[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
	return r, nil
}

// Client is a read-only client for the Teamflect API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

// NewClient builds a client allowing perMinute requests per minute.
func NewClient(baseURL, apiKey string, perMinute int) *Client {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// NewClientFromEnv reads TEAMFLECT_BASE_URL, TEAMFLECT_API_KEY and
// TEAMFLECT_RATE_LIMIT_PER_MIN.
func NewClientFromEnv() *Client {
	return NewClient(config.TeamflectBaseURL(), config.TeamflectAPIKey(), config.TeamflectRatePerMinute())
}

// ListParams are the paging and filter parameters shared by list calls.
type ListParams struct {
	Limit  int
	Skip   int
	Status string
	Search string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", fmt.Sprint(p.Limit))
	}
	if p.Skip > 0 {
		v.Set("skip", fmt.Sprint(p.Skip))
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v
}

// List fetches one page of a resource and returns the raw JSON payload.
func (c *Client) List(ctx context.Context, resource Resource, params ListParams) (json.RawMessage, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	path, ok := paths[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := c.BaseURL + path
	if q := params.values(); len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (%d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("work management api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("work management api: invalid json from %s", path)
	}
	return json.RawMessage(body), nil
}
