// Package handlers implements the HTTP API of property-price-tracker as Huma
// operations. Each handler depends on a small provider interface so it can be
// exercised without a database.
package handlers

// StatusResponse is a generic status response body.
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}
