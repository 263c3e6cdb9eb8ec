// Package ednia is a thin typed client for the Ednia high-school
// catalog API: the school list and per-program detail pages.
package ednia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/httpx"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
)

// Service is the rate-limiter key for this upstream.
const Service = "ednia"

const userAgent = "GymnasierExport/1.0"

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *ratelimit.Limiter
	Retry   httpx.RetryConfig
}

func New(baseURL string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: limiter,
		Retry:   httpx.DefaultRetryConfig(),
	}
}

// ListSchools fetches one page of the school list for a municipality.
// The caller pages until HasMore is false.
func (c *Client) ListSchools(ctx context.Context, municipality string, offset, take int) (*SchoolPage, error) {
	if err := c.Limiter.Acquire(ctx, Service); err != nil {
		return nil, err
	}

	reqBody := recommendRequest{
		Offset: offset,
		Take:   take,
		Filter: recommendFilter{
			Projection:         "programs",
			Municipality:       municipality,
			Programs:           []string{},
			AdmissionPointsMin: 0,
			AdmissionPointsMax: 340,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ednia: encode recommend body: %w", err)
	}

	var page SchoolPage
	err = httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/recommend", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}, &page, c.Retry)
	if err != nil {
		return nil, fmt.Errorf("ednia: list schools offset=%d: %w", offset, err)
	}
	return &page, nil
}

// GetProgramPage fetches the detail page for one (school, program)
// pair. Stats and study paths may be absent; that is data, not error.
func (c *Client) GetProgramPage(ctx context.Context, schoolID, programCode, municipality string) (*domain.ProgramDetail, error) {
	if err := c.Limiter.Acquire(ctx, Service); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("highSchoolId", schoolID)
	q.Set("programCode", programCode)
	q.Set("municipality", municipality)
	endpoint := c.BaseURL + "/getProgramPage?" + q.Encode()

	var out programPageResponse
	err := httpx.DoJSON(ctx, c.HTTP, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}, &out, c.Retry)
	if err != nil {
		return nil, fmt.Errorf("ednia: program page school=%s program=%s: %w", schoolID, programCode, err)
	}
	if out.ProgramPage == nil {
		return &domain.ProgramDetail{}, nil
	}
	return out.ProgramPage, nil
}
