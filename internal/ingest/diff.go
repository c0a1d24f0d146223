package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// DefaultCountry is appended to every search address.
const DefaultCountry = "Canada"

// timestampLayouts are the accepted TimestampSql formats. Layouts without a
// zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var digitRun = regexp.MustCompile(`\d+`)

// DiffEngine turns a snapshot and the stored row into a listing write with
// derived bounds, search address and photo fields.
type DiffEngine struct {
	country string
	now     func() time.Time
}

// DiffOption configures a DiffEngine.
type DiffOption func(*DiffEngine)

// WithClock sets the time source used for defaulted timestamps.
func WithClock(now func() time.Time) DiffOption {
	return func(d *DiffEngine) {
		d.now = now
	}
}

// NewDiffEngine creates a DiffEngine. An empty country uses DefaultCountry.
func NewDiffEngine(country string, opts ...DiffOption) *DiffEngine {
	if country == "" {
		country = DefaultCountry
	}
	d := &DiffEngine{country: country, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ComputeCreate builds the INSERT for a listing that has no stored row.
// Both bounds start at the incoming price.
func (d *DiffEngine) ComputeCreate(
	p domain.Partition,
	in *domain.Snapshot,
) (store.WriteOperation, *domain.Listing, error) {
	l, err := d.fromSnapshot(in)
	if err != nil {
		return store.WriteOperation{}, nil, err
	}

	l.MinListPrice = decimal.NewNullDecimal(l.ListPrice)
	l.MaxListPrice = decimal.NewNullDecimal(l.ListPrice)
	l.FirstSeenAt = l.UpdatedAt

	if in.HasImages() {
		l.PhotoLink = SortImages(in.Images)
		l.PhotoCount = len(l.PhotoLink)
	}

	fields, err := listingFields(l, true, true)
	if err != nil {
		return store.WriteOperation{}, nil, err
	}

	return store.WriteOperation{
		Table:  p.ListingsTable(),
		Kind:   store.OpInsert,
		Key:    l.MLS,
		Fields: fields,
	}, l, nil
}

// ComputeUpdate builds the UPDATE for a listing with a stored row. Bounds only
// widen; a null bound is re-initialised to the incoming price. Photo fields
// are written only when withImages is set.
func (d *DiffEngine) ComputeUpdate(
	p domain.Partition,
	in *domain.Snapshot,
	existing *domain.Listing,
	withImages bool,
) (store.WriteOperation, *domain.Listing, error) {
	if existing == nil {
		return store.WriteOperation{}, nil, fmt.Errorf("mls %s: %w", strings.TrimSpace(in.MLS), ErrNotFoundForUpdate)
	}

	l, err := d.fromSnapshot(in)
	if err != nil {
		return store.WriteOperation{}, nil, err
	}

	l.MinListPrice, l.MaxListPrice = nextBounds(l.ListPrice, existing)
	l.FirstSeenAt = existing.FirstSeenAt

	if withImages && in.HasImages() {
		l.PhotoLink = SortImages(in.Images)
		l.PhotoCount = len(l.PhotoLink)
	} else {
		withImages = false
		l.PhotoLink = existing.PhotoLink
		l.PhotoCount = existing.PhotoCount
	}

	fields, err := listingFields(l, withImages, false)
	if err != nil {
		return store.WriteOperation{}, nil, err
	}

	return store.WriteOperation{
		Table:  p.ListingsTable(),
		Kind:   store.OpUpdate,
		Key:    l.MLS,
		Fields: fields,
	}, l, nil
}

// nextBounds derives the new min and max from the incoming price and the
// stored row. The two checks are independent.
func nextBounds(price decimal.Decimal, existing *domain.Listing) (minPrice, maxPrice decimal.NullDecimal) {
	minPrice, maxPrice = existing.MinListPrice, existing.MaxListPrice

	if price.Equal(existing.ListPrice) && minPrice.Valid && maxPrice.Valid {
		return minPrice, maxPrice
	}

	if !minPrice.Valid || price.LessThanOrEqual(minPrice.Decimal) {
		minPrice = decimal.NewNullDecimal(price)
	}
	if !maxPrice.Valid || price.GreaterThanOrEqual(maxPrice.Decimal) {
		maxPrice = decimal.NewNullDecimal(price)
	}
	return minPrice, maxPrice
}

// fromSnapshot validates in and copies its pass-through fields.
func (d *DiffEngine) fromSnapshot(in *domain.Snapshot) (*domain.Listing, error) {
	if in == nil {
		return nil, &ValidationError{Field: "snapshot", Reason: "is nil"}
	}

	mls := strings.TrimSpace(in.MLS)
	if mls == "" {
		return nil, &ValidationError{Field: "MLS", Reason: "is required"}
	}

	price, err := ParsePrice(in.ListPrice.String())
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	ts, err := parseTimestamp(in.TimestampSQL, now)
	if err != nil {
		return nil, err
	}

	return &domain.Listing{
		MLS:                mls,
		PropertyType:       strings.TrimSpace(in.PropertyType),
		ListPrice:          price,
		TimestampSQL:       ts,
		SearchAddress:      SearchAddress(in, d.country),
		Street:             in.Street,
		StreetName:         in.StreetName,
		StreetAbbreviation: in.StreetAbbreviation,
		Area:               in.Area,
		Municipality:       in.Municipality,
		Province:           in.Province,
		PostalCode:         in.PostalCode,
		Bedrooms:           in.Bedrooms.String(),
		Washrooms:          in.Washrooms.String(),
		Description:        in.Description,
		Attributes:         in.Attributes,
		UpdatedAt:          now,
	}, nil
}

// listingFields renders l as column assignments in storage order.
func listingFields(l *domain.Listing, withPhotos, withFirstSeen bool) ([]store.Field, error) {
	attrs := "{}"
	if len(l.Attributes) > 0 {
		b, err := json.Marshal(l.Attributes)
		if err != nil {
			return nil, &ValidationError{Field: "Attributes", Reason: err.Error()}
		}
		attrs = string(b)
	}

	fields := []store.Field{
		{Column: store.ColPropertyType, Value: l.PropertyType},
		{Column: store.ColListPrice, Value: l.ListPrice},
		{Column: store.ColMinListPrice, Value: l.MinListPrice},
		{Column: store.ColMaxListPrice, Value: l.MaxListPrice},
		{Column: store.ColTimestampSQL, Value: l.TimestampSQL},
	}

	if withPhotos {
		photos := "[]"
		if len(l.PhotoLink) > 0 {
			b, err := json.Marshal(l.PhotoLink)
			if err != nil {
				return nil, fmt.Errorf("encoding photo link: %w", err)
			}
			photos = string(b)
		}
		fields = append(fields,
			store.Field{Column: store.ColPhotoLink, Value: photos},
			store.Field{Column: store.ColPhotoCount, Value: l.PhotoCount},
		)
	}

	fields = append(fields,
		store.Field{Column: store.ColSearchAddress, Value: l.SearchAddress},
		store.Field{Column: store.ColStreet, Value: l.Street},
		store.Field{Column: store.ColStreetName, Value: l.StreetName},
		store.Field{Column: store.ColStreetAbbreviation, Value: l.StreetAbbreviation},
		store.Field{Column: store.ColArea, Value: l.Area},
		store.Field{Column: store.ColMunicipality, Value: l.Municipality},
		store.Field{Column: store.ColProvince, Value: l.Province},
		store.Field{Column: store.ColPostalCode, Value: l.PostalCode},
		store.Field{Column: store.ColBedrooms, Value: l.Bedrooms},
		store.Field{Column: store.ColWashrooms, Value: l.Washrooms},
		store.Field{Column: store.ColDescription, Value: l.Description},
		store.Field{Column: store.ColAttributes, Value: attrs},
	)

	if withFirstSeen {
		fields = append(fields, store.Field{Column: store.ColFirstSeenAt, Value: l.FirstSeenAt})
	}
	fields = append(fields, store.Field{Column: store.ColUpdatedAt, Value: l.UpdatedAt})

	return fields, nil
}

// ParsePrice parses a trimmed decimal price. Anything that is not a
// non-negative number fails with ErrInvalidPriceFormat.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, &ValidationError{Field: "ListPrice", Reason: "is required"}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPriceFormat, s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", ErrInvalidPriceFormat, s)
	}
	return d, nil
}

func parseTimestamp(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "TimestampSql", Reason: fmt.Sprintf("unrecognised timestamp %q", s)}
}

// SearchAddress joins the address components and country with single spaces,
// lowercased and with commas removed. Empty components are skipped.
func SearchAddress(s *domain.Snapshot, country string) string {
	parts := []string{s.Street, s.StreetName, s.StreetAbbreviation, s.Area, s.Province, country}
	joined := strings.Join(parts, " ")
	joined = strings.ReplaceAll(strings.ToLower(joined), ",", "")
	return strings.Join(strings.Fields(joined), " ")
}

// SortImages returns a copy of names ordered by the last run of digits in
// each name. Names without digits sort after numbered ones, keeping their
// original order.
func SortImages(names []string) []string {
	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int {
		na, okA := trailingNumber(a)
		nb, okB := trailingNumber(b)
		switch {
		case okA && okB:
			if na < nb {
				return -1
			}
			if na > nb {
				return 1
			}
			return 0
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return out
}

func trailingNumber(name string) (uint64, bool) {
	runs := digitRun.FindAllString(name, -1)
	if len(runs) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(runs[len(runs)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
