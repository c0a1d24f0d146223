package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// ListingsProvider defines the store methods required by the listings handler.
type ListingsProvider interface {
	GetListing(ctx context.Context, p domain.Partition, mls string) (*domain.Listing, error)
	GetPriceHistory(ctx context.Context, p domain.Partition, mls string) (*domain.PriceHistory, error)
	ListListings(ctx context.Context, p domain.Partition, q *store.ListingQuery) ([]domain.Listing, int, error)
}

// ListingsHandler handles listing query endpoints.
type ListingsHandler struct {
	store ListingsProvider
}

// NewListingsHandler creates a new ListingsHandler.
func NewListingsHandler(s ListingsProvider) *ListingsHandler {
	return &ListingsHandler{store: s}
}

// ListingView is a listing with its derived price-drop flag.
type ListingView struct {
	domain.Listing
	PriceDecreased bool `json:"price_decreased"`
}

func newListingView(l *domain.Listing) ListingView {
	return ListingView{Listing: *l, PriceDecreased: l.PriceDecreased()}
}

// --- Input/Output types ---

// PartitionPath selects the partition of a request.
type PartitionPath struct {
	Partition string `path:"partition" doc:"Listing partition" enum:"residential,commercial"`
}

// ListListingsInput is the input for listing listings with optional filters.
type ListListingsInput struct {
	PartitionPath
	ListingFilters
	Limit   int    `query:"limit"    doc:"Number of results (default 10)" minimum:"1" maximum:"500"`
	Offset  int    `query:"offset"   doc:"Pagination offset"              minimum:"0"`
	OrderBy string `query:"order_by" doc:"Sort order"                     enum:"timestamp,price,price_desc,"`
}

// ListListingsOutput is the response for listing listings.
type ListListingsOutput struct {
	Body struct {
		Listings []ListingView `json:"listings"`
		Total    int           `json:"total"`
		Limit    int           `json:"limit"`
		Offset   int           `json:"offset"`
	}
}

// GetListingInput is the input for reading a single listing or its history.
type GetListingInput struct {
	PartitionPath
	MLS string `path:"mls" doc:"MLS number"`
}

// GetListingOutput is the response for getting a single listing.
type GetListingOutput struct {
	Body ListingView
}

// GetHistoryOutput is the price history of one listing.
type GetHistoryOutput struct {
	Body domain.PriceHistory
}

// --- Handlers ---

// ListListings returns listings of a partition matching the filters.
func (h *ListingsHandler) ListListings(
	ctx context.Context,
	input *ListListingsInput,
) (*ListListingsOutput, error) {
	q, err := input.toQuery()
	if err != nil {
		return nil, err
	}
	q.Limit = input.Limit
	q.Offset = input.Offset
	q.OrderBy = input.OrderBy
	if q.Limit == 0 {
		q.Limit = 10
	}

	listings, total, err := h.store.ListListings(ctx, domain.Partition(input.Partition), q)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing query failed: " + err.Error())
	}

	resp := &ListListingsOutput{}
	resp.Body.Listings = make([]ListingView, 0, len(listings))
	for i := range listings {
		resp.Body.Listings = append(resp.Body.Listings, newListingView(&listings[i]))
	}
	resp.Body.Total = total
	resp.Body.Limit = q.Limit
	resp.Body.Offset = q.Offset

	return resp, nil
}

// GetListing returns a single listing by MLS.
func (h *ListingsHandler) GetListing(
	ctx context.Context,
	input *GetListingInput,
) (*GetListingOutput, error) {
	listing, err := h.store.GetListing(ctx, domain.Partition(input.Partition), input.MLS)
	if errors.Is(err, store.ErrNotFound) {
		return nil, huma.Error404NotFound("listing not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("reading listing failed: " + err.Error())
	}

	return &GetListingOutput{Body: newListingView(listing)}, nil
}

// GetHistory returns the price ledger of a listing. The ledger outlives the
// listing, so it is served even after reconciliation removed the listing.
func (h *ListingsHandler) GetHistory(
	ctx context.Context,
	input *GetListingInput,
) (*GetHistoryOutput, error) {
	hist, err := h.store.GetPriceHistory(ctx, domain.Partition(input.Partition), input.MLS)
	if errors.Is(err, store.ErrNotFound) {
		return nil, huma.Error404NotFound("price history not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("reading price history failed: " + err.Error())
	}

	return &GetHistoryOutput{Body: *hist}, nil
}

// RegisterListingRoutes registers listing endpoints with the Huma API.
func RegisterListingRoutes(api huma.API, h *ListingsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-listings",
		Method:      http.MethodGet,
		Path:        "/api/v1/partitions/{partition}/listings",
		Summary:     "List listings",
		Description: "Returns listings of a partition with optional filters, ordering and pagination.",
		Tags:        []string{"listings"},
		Errors:      []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, h.ListListings)

	huma.Register(api, huma.Operation{
		OperationID: "get-listing",
		Method:      http.MethodGet,
		Path:        "/api/v1/partitions/{partition}/listings/{mls}",
		Summary:     "Get a listing by MLS",
		Tags:        []string{"listings"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetListing)

	huma.Register(api, huma.Operation{
		OperationID: "get-price-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/partitions/{partition}/listings/{mls}/history",
		Summary:     "Get the price history of a listing",
		Description: "Returns every recorded price change, oldest first.",
		Tags:        []string{"listings"},
		Errors:      []int{http.StatusNotFound},
	}, h.GetHistory)
}
