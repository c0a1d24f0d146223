package handlers

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/donaldgifford/property-price-tracker/internal/store"
)

// ListingFilters are the query parameters shared by the listing and stats
// endpoints.
type ListingFilters struct {
	PropertyType   string   `query:"property_type"   doc:"Exact property type"`
	Area           string   `query:"area"            doc:"Exact area"`
	AnyArea        []string `query:"any_area"        doc:"Match any of these areas (comma separated)"`
	Municipality   string   `query:"municipality"    doc:"Exact municipality"`
	Province       string   `query:"province"        doc:"Exact province"`
	Bedrooms       string   `query:"bedrooms"        doc:"Exact bedroom count as listed"`
	MinPrice       string   `query:"min_price"       doc:"Minimum list price"`
	MaxPrice       string   `query:"max_price"       doc:"Maximum list price"`
	PriceDecreased bool     `query:"price_decreased" doc:"Only listings at their lowest price after a drop"`
	Search         string   `query:"search"          doc:"Substring of the normalised address"`
}

// toQuery converts the filters into a store query. Malformed prices are
// reported as a 422.
func (f *ListingFilters) toQuery() (*store.ListingQuery, error) {
	q := &store.ListingQuery{PriceDecreased: f.PriceDecreased}

	str := func(v string) *string {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil
		}
		return &v
	}
	q.PropertyType = str(f.PropertyType)
	q.Area = str(f.Area)
	q.Municipality = str(f.Municipality)
	q.Province = str(f.Province)
	q.Bedrooms = str(f.Bedrooms)
	q.Search = str(f.Search)

	for _, a := range f.AnyArea {
		if a = strings.TrimSpace(a); a != "" {
			q.AnyArea = append(q.AnyArea, a)
		}
	}

	var err error
	if q.MinPrice, err = parsePrice("min_price", f.MinPrice); err != nil {
		return nil, err
	}
	if q.MaxPrice, err = parsePrice("max_price", f.MaxPrice); err != nil {
		return nil, err
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return nil, huma.Error422UnprocessableEntity("min_price must not exceed max_price")
	}

	return q, nil
}

func parsePrice(name, v string) (*decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("invalid %s %q", name, v))
	}
	return &d, nil
}
