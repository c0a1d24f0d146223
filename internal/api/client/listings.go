package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Listing is a listing as served by the API.
type Listing struct {
	domain.Listing
	PriceDecreased bool `json:"price_decreased"`
}

// ListingsResponse wraps a paginated listings response.
type ListingsResponse struct {
	Listings []Listing `json:"listings"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Filters select listings for the listing and stats endpoints.
type Filters struct {
	PropertyType   string
	Area           string
	AnyArea        []string
	Municipality   string
	Province       string
	Bedrooms       string
	MinPrice       string
	MaxPrice       string
	PriceDecreased bool
	Search         string
}

func (f *Filters) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("property_type", f.PropertyType)
	set("area", f.Area)
	set("any_area", strings.Join(f.AnyArea, ","))
	set("municipality", f.Municipality)
	set("province", f.Province)
	set("bedrooms", f.Bedrooms)
	set("min_price", f.MinPrice)
	set("max_price", f.MaxPrice)
	set("search", f.Search)
	if f.PriceDecreased {
		q.Set("price_decreased", "true")
	}
	return q
}

// ListListingsParams defines query parameters for listing queries.
type ListListingsParams struct {
	Filters
	Limit   int
	Offset  int
	OrderBy string
}

// ListListings returns listings of p matching the given parameters.
func (c *Client) ListListings(
	ctx context.Context,
	p domain.Partition,
	params *ListListingsParams,
) (*ListingsResponse, error) {
	q := params.values()
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.OrderBy != "" {
		q.Set("order_by", params.OrderBy)
	}

	path := partitionPath(p, "/listings")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListingsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetListing returns a single listing by MLS.
func (c *Client) GetListing(ctx context.Context, p domain.Partition, mls string) (*Listing, error) {
	var l Listing
	if err := c.get(ctx, partitionPath(p, "/listings/"+url.PathEscape(mls)), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetPriceHistory returns the price ledger of a listing.
func (c *Client) GetPriceHistory(ctx context.Context, p domain.Partition, mls string) (*domain.PriceHistory, error) {
	var h domain.PriceHistory
	if err := c.get(ctx, partitionPath(p, "/listings/"+url.PathEscape(mls)+"/history"), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// IngestResult reports how a pushed snapshot was applied.
type IngestResult struct {
	MLS             string          `json:"mls"`
	Classification  string          `json:"classification"`
	HistoryAppended bool            `json:"history_appended"`
	Listing         *domain.Listing `json:"listing"`
}

// UpsertListing pushes one raw snapshot document to p.
func (c *Client) UpsertListing(ctx context.Context, p domain.Partition, snapshot json.RawMessage) (*IngestResult, error) {
	var res IngestResult
	if err := c.post(ctx, partitionPath(p, "/listings"), snapshot, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetStats returns price statistics for listings of p. Empty metrics selects
// all of them and a zero span uses the server default.
func (c *Client) GetStats(
	ctx context.Context,
	p domain.Partition,
	f *Filters,
	spanMonths int,
	metrics []string,
) (*domain.ListingStats, error) {
	q := f.values()
	if spanMonths > 0 {
		q.Set("span_months", strconv.Itoa(spanMonths))
	}
	if len(metrics) > 0 {
		q.Set("metrics", strings.Join(metrics, ","))
	}

	path := partitionPath(p, "/stats")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var st domain.ListingStats
	if err := c.get(ctx, path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
