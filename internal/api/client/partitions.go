package client

import (
	"context"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// ListPartitions returns the halt status of every partition.
func (c *Client) ListPartitions(ctx context.Context) ([]domain.PartitionStatus, error) {
	var out []domain.PartitionStatus
	if err := c.get(ctx, "/api/v1/partitions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResumePartition clears a halt. It reports false when p was not halted.
func (c *Client) ResumePartition(ctx context.Context, p domain.Partition) (bool, error) {
	var resp struct {
		Resumed bool `json:"resumed"`
	}
	if err := c.post(ctx, partitionPath(p, "/resume"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Resumed, nil
}

// Reconcile removes listings of p no longer upstream. A nil active set asks
// the server to read its feed.
func (c *Client) Reconcile(ctx context.Context, p domain.Partition, propertyType string, active []string) (int, error) {
	body := map[string]any{}
	if propertyType != "" {
		body["property_type"] = propertyType
	}
	if active != nil {
		body["active_mls"] = active
	}

	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.post(ctx, partitionPath(p, "/reconcile"), body, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// PartitionReport summarises one partition of a feed cycle.
type PartitionReport struct {
	Partition       domain.Partition `json:"partition"`
	Fetched         int              `json:"fetched"`
	Ingested        int              `json:"ingested"`
	Failed          int              `json:"failed"`
	HistoryAppended int              `json:"history_appended"`
	Classifications map[string]int   `json:"classifications"`
	Deleted         int              `json:"deleted"`
	SweepSkipped    string           `json:"sweep_skipped,omitempty"`
	Halted          bool             `json:"halted"`
	Error           string           `json:"error,omitempty"`
}

// CycleReport summarises a feed cycle.
type CycleReport struct {
	JobRunID   string            `json:"job_run_id"`
	Partitions []PartitionReport `json:"partitions"`
}

// TriggerIngestion runs a feed cycle on the server and waits for its report.
func (c *Client) TriggerIngestion(ctx context.Context) (*CycleReport, error) {
	var r CycleReport
	if err := c.post(ctx, "/api/v1/ingest", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
