// Package client provides a typed API client and the caching
// orchestrator that drives dashboard refreshes against it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"wattview/internal/db"
)

// Client is a typed HTTP client for the analytics API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Nil is
// ignored.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the server's JSON error envelope.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) get(
	ctx context.Context, path string, query url.Values, out any,
) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil &&
			apiErr.Error != "" {
			return fmt.Errorf("%s: %s (status %d)",
				path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// filterQuery renders a filter as query parameters, omitting
// zero values.
func filterQuery(f db.Filter) url.Values {
	q := url.Values{}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if _, ok := f.Floor.Value(); ok {
		q.Set("floor", f.Floor.String())
	}
	if f.Granularity == db.GranularityWeek {
		q.Set("granularity", string(f.Granularity))
	}
	if f.Weekday != "" {
		q.Set("weekday", f.Weekday)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Dates lists all dates with readings, ascending.
func (c *Client) Dates(ctx context.Context) ([]string, error) {
	var out struct {
		Dates []string `json:"dates"`
	}
	if err := c.get(ctx, "/api/v1/dates", nil, &out); err != nil {
		return nil, err
	}
	return out.Dates, nil
}

// Summary fetches the multi-granularity energy summary.
func (c *Client) Summary(
	ctx context.Context, f db.Filter,
) (db.Summary, error) {
	var out db.Summary
	err := c.get(ctx, "/api/v1/analytics/summary", filterQuery(f), &out)
	return out, err
}

// Hourly fetches the per-hour breakdown with its peak hour.
func (c *Client) Hourly(
	ctx context.Context, f db.Filter,
) (db.HourlyData, error) {
	var out db.HourlyData
	err := c.get(ctx, "/api/v1/analytics/hourly", filterQuery(f), &out)
	return out, err
}

// WeeklyPeaks fetches the per-weekday peak hours.
func (c *Client) WeeklyPeaks(
	ctx context.Context, f db.Filter,
) (db.WeeklyPeaks, error) {
	var out db.WeeklyPeaks
	err := c.get(ctx, "/api/v1/analytics/weekly-peaks", filterQuery(f), &out)
	return out, err
}

// Floors fetches the per-floor analytics.
func (c *Client) Floors(
	ctx context.Context, f db.Filter,
) (db.FloorAnalytics, error) {
	var out db.FloorAnalytics
	err := c.get(ctx, "/api/v1/analytics/floors", filterQuery(f), &out)
	return out, err
}

// TopUnits fetches the highest-consuming units.
func (c *Client) TopUnits(
	ctx context.Context, f db.Filter,
) (db.TopUnits, error) {
	var out db.TopUnits
	err := c.get(ctx, "/api/v1/analytics/top-units", filterQuery(f), &out)
	return out, err
}

// EquipmentTypes fetches consumption grouped by equipment type.
func (c *Client) EquipmentTypes(
	ctx context.Context, f db.Filter,
) (db.GroupMetrics, error) {
	var out db.GroupMetrics
	err := c.get(ctx, "/api/v1/analytics/equipment-types", filterQuery(f), &out)
	return out, err
}

// Buildings fetches consumption grouped by building.
func (c *Client) Buildings(
	ctx context.Context, f db.Filter,
) (db.GroupMetrics, error) {
	var out db.GroupMetrics
	err := c.get(ctx, "/api/v1/analytics/buildings", filterQuery(f), &out)
	return out, err
}

// Branches fetches consumption grouped by branch.
func (c *Client) Branches(
	ctx context.Context, f db.Filter,
) (db.GroupMetrics, error) {
	var out db.GroupMetrics
	err := c.get(ctx, "/api/v1/analytics/branches", filterQuery(f), &out)
	return out, err
}
