package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// RecordPriceObservation returns the write that appends (ts, price) to the
// ledger of mls, or nil when the latest recorded price already equals price.
// A missing ledger produces an INSERT with a single entry. Prices compare as
// decimals, so "500000" and "500000.00" are the same observation.
func RecordPriceObservation(
	ctx context.Context,
	r store.Reader,
	p domain.Partition,
	mls string,
	ts time.Time,
	price decimal.Decimal,
) (*store.WriteOperation, error) {
	point := domain.PricePoint{Date: ts.UTC(), Price: price}

	h, err := r.GetPriceHistory(ctx, p, mls)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return historyOp(p, mls, store.OpInsert, []domain.PricePoint{point})
	case err != nil:
		return nil, fmt.Errorf("reading price history: %w", err)
	}

	if last, ok := h.Latest(); ok && last.Price.Equal(price) {
		return nil, nil
	}

	points := append(slices.Clip(h.Points), point)
	return historyOp(p, mls, store.OpUpdate, points)
}

func historyOp(
	p domain.Partition,
	mls string,
	kind store.OpKind,
	points []domain.PricePoint,
) (*store.WriteOperation, error) {
	b, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encoding price history: %w", err)
	}

	return &store.WriteOperation{
		Table: p.HistoryTable(),
		Kind:  kind,
		Key:   mls,
		Fields: []store.Field{
			{Column: store.ColHistory, Value: string(b)},
			{Column: store.ColUpdatedAt, Value: time.Now().UTC()},
		},
	}, nil
}
