// Package stats computes aggregate ListPrice statistics over a filtered
// partition, memoising each metric independently in a cache.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/donaldgifford/property-price-tracker/internal/cache"
	"github.com/donaldgifford/property-price-tracker/internal/metrics"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Metric names.
const (
	MetricAvg    = "avg"
	MetricMedian = "median"
	MetricStdDev = "sd"
)

// DefaultSpanMonths is the look-back window when none is given.
const DefaultSpanMonths = 3

// AllMetrics is the default metric set, in response order.
var AllMetrics = []string{MetricAvg, MetricMedian, MetricStdDev}

// ErrUnknownMetric is returned for a metric name outside AllMetrics.
var ErrUnknownMetric = errors.New("unknown metric")

// PriceSource lists the ListPrice of every listing matching a query.
type PriceSource interface {
	ListPrices(ctx context.Context, p domain.Partition, q *store.ListingQuery) ([]decimal.Decimal, error)
}

// Service computes listing statistics.
type Service struct {
	prices PriceSource
	cache  cache.Cache
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithClock overrides the time source used for the look-back window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. A nil cache disables caching.
func New(prices PriceSource, c cache.Cache, opts ...Option) *Service {
	if c == nil {
		c = cache.NewNoOp()
	}
	s := &Service{
		prices: prices,
		cache:  c,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute returns the requested metrics for listings of p matching q whose
// timestamp falls within the last spanMonths months. Pagination and ordering
// fields of q are ignored. An empty names slice selects AllMetrics.
func (s *Service) Compute(
	ctx context.Context,
	p domain.Partition,
	q store.ListingQuery,
	spanMonths int,
	names []string,
) (*domain.ListingStats, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown partition %q", p)
	}
	if spanMonths <= 0 {
		spanMonths = DefaultSpanMonths
	}
	if len(names) == 0 {
		names = AllMetrics
	}
	for _, n := range names {
		if !slices.Contains(AllMetrics, n) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, n)
		}
	}

	q.Limit, q.Offset, q.OrderBy = 0, 0, ""
	since := s.now().UTC().AddDate(0, -spanMonths, 0)
	q.Since = &since

	out := &domain.ListingStats{
		Partition:  p,
		SpanMonths: spanMonths,
		Metrics:    make(map[string]domain.StatValue, len(names)),
	}

	var prices []decimal.Decimal
	loaded := false

	for _, name := range names {
		key := Key(p, name, spanMonths, &q)

		if v, ok := s.cached(ctx, key); ok {
			out.Metrics[name] = domain.StatValue{Value: v, Source: domain.StatSourceCached}
			continue
		}

		if !loaded {
			var err error
			prices, err = s.prices.ListPrices(ctx, p, &q)
			if err != nil {
				return nil, fmt.Errorf("listing prices: %w", err)
			}
			loaded = true
		}

		v := compute(name, prices)
		s.store(ctx, key, v)
		out.Metrics[name] = domain.StatValue{Value: v, Source: domain.StatSourceNew}
	}

	return out, nil
}

func (s *Service) cached(ctx context.Context, key string) (*float64, bool) {
	b, err := s.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheMissesTotal.Inc()
		return nil, false
	case err != nil:
		metrics.CacheErrorsTotal.Inc()
		s.log.Warn("stats cache read failed", "key", key, "error", err)
		return nil, false
	}

	var v *float64
	if err := json.Unmarshal(b, &v); err != nil {
		metrics.CacheErrorsTotal.Inc()
		s.log.Warn("discarding malformed cached stat", "key", key, "error", err)
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return v, true
}

func (s *Service) store(ctx context.Context, key string, v *float64) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		metrics.CacheErrorsTotal.Inc()
		s.log.Warn("stats cache write failed", "key", key, "error", err)
	}
}

// Key is the canonical cache key of one metric over a filtered partition.
// Filters are query-encoded with sorted names and escaped values, so equal
// queries share a key and distinct ones never collide.
func Key(p domain.Partition, metric string, spanMonths int, q *store.ListingQuery) string {
	v := url.Values{}
	v.Set("span", strconv.Itoa(spanMonths))

	str := func(name string, s *string) {
		if s != nil {
			v.Set(name, *s)
		}
	}
	str("property_type", q.PropertyType)
	str("area", q.Area)
	str("municipality", q.Municipality)
	str("province", q.Province)
	str("bedrooms", q.Bedrooms)

	if len(q.AnyArea) > 0 {
		areas := slices.Clone(q.AnyArea)
		slices.Sort(areas)
		v["any_area"] = areas
	}
	if q.MinPrice != nil {
		v.Set("min_price", q.MinPrice.String())
	}
	if q.MaxPrice != nil {
		v.Set("max_price", q.MaxPrice.String())
	}
	if q.PriceDecreased {
		v.Set("price_decreased", "true")
	}
	if q.Search != nil {
		v.Set("search", strings.ToLower(strings.TrimSpace(*q.Search)))
	}
	return "stats:" + string(p) + ":" + metric + ":" + v.Encode()
}

func compute(name string, prices []decimal.Decimal) *float64 {
	if len(prices) == 0 {
		return nil
	}
	var v float64
	switch name {
	case MetricAvg:
		v = Mean(prices)
	case MetricMedian:
		v = Median(prices)
	case MetricStdDev:
		v = StdDev(prices)
	}
	return &v
}

func floats(prices []decimal.Decimal) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.InexactFloat64()
	}
	return out
}

// Mean returns the arithmetic mean of prices.
func Mean(prices []decimal.Decimal) float64 {
	if len(prices) == 0 {
		return 0
	}
	return stat.Mean(floats(prices), nil)
}

// Median returns the middle price, or the mean of the two middle prices.
func Median(prices []decimal.Decimal) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	xs := floats(prices)
	sort.Float64s(xs)

	if n%2 == 1 {
		return stat.Quantile(0.5, stat.Empirical, xs, nil)
	}
	return stat.Mean(xs[n/2-1:n/2+1], nil)
}

// StdDev returns the population standard deviation of prices.
func StdDev(prices []decimal.Decimal) float64 {
	if len(prices) == 0 {
		return 0
	}
	return stat.PopStdDev(floats(prices), nil)
}
