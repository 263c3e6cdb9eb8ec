// Package resrobot is a thin typed client for the ResRobot v2.1
// public transport API: stop lookup and trip planning.
package resrobot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/httpx"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
)

// Service is the rate-limiter key for this upstream.
const Service = "resrobot"

const userAgent = "GymnasierExport/1.0"

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *ratelimit.Limiter
	Retry   httpx.RetryConfig
}

func New(baseURL, apiKey string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: limiter,
		Retry:   httpx.DefaultRetryConfig(),
	}
}

// FindStop searches stops by name. ResRobot treats a trailing "?" as
// a fuzzy-match marker, so fuzzy=true re-issues the query that way.
// Candidates come back in response order with their disambiguation
// weight; an empty slice is a valid no-hit outcome.
func (c *Client) FindStop(ctx context.Context, query string, fuzzy bool) ([]domain.StopCandidate, error) {
	if err := c.Limiter.Acquire(ctx, Service); err != nil {
		return nil, err
	}

	input := query
	if fuzzy {
		input += "?"
	}
	q := url.Values{}
	q.Set("input", input)
	q.Set("format", "json")
	q.Set("accessId", c.APIKey)
	endpoint := c.BaseURL + "/location.name?" + q.Encode()

	var out locationResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("resrobot: stop lookup %q: %w", query, err)
	}

	candidates := make([]domain.StopCandidate, 0, len(out.StopLocationOrCoordLocation))
	for _, entry := range out.StopLocationOrCoordLocation {
		if entry.StopLocation == nil {
			continue
		}
		candidates = append(candidates, domain.StopCandidate{
			ExternalID: entry.StopLocation.ExtID,
			Name:       entry.StopLocation.Name,
			Weight:     entry.StopLocation.Weight,
		})
	}
	return candidates, nil
}

// PlanTrip queries one itinerary between two stops and returns the
// first trip's ISO 8601 duration. found=false means the planner had
// no itinerary, which callers map to "travel time unavailable".
func (c *Client) PlanTrip(ctx context.Context, originID, destID string) (duration string, found bool, err error) {
	if err := c.Limiter.Acquire(ctx, Service); err != nil {
		return "", false, err
	}

	q := url.Values{}
	q.Set("originId", originID)
	q.Set("destId", destID)
	q.Set("format", "json")
	q.Set("accessId", c.APIKey)
	endpoint := c.BaseURL + "/trip?" + q.Encode()

	var out tripResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return "", false, fmt.Errorf("resrobot: trip %s->%s: %w", originID, destID, err)
	}
	if len(out.Trips) == 0 {
		return "", false, nil
	}
	return out.Trips[0].Duration, true, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}, out, c.Retry)
}
