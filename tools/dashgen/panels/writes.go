package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// BatchWriteLatency returns a timeseries panel showing transactional batch
// write latency percentiles.
func BatchWriteLatency() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Batch Write Latency").
		Description("Duration of transactional listing and history writes").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(quantile("0.50", "ppt_batch_write_duration_seconds"), "p50", "A")).
		WithTarget(PromQuery(quantile("0.99", "ppt_batch_write_duration_seconds"), "p99", "B")).
		Unit("s").
		FillOpacity(10).
		LineWidth(2).
		Tooltip(MultiTooltip()).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleLine)
}

// WriteFailures returns a timeseries panel showing rolled back batches.
func WriteFailures() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Rolled Back Writes").
		Description("Batches rolled back after a failed operation, per minute").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(StatWidth).
		WithTarget(PromQuery(`sum by (partition) (ppt:write_failures:rate5m) * 60`, "{{partition}}", "A")).
		FillOpacity(10).
		LineWidth(2).
		Thresholds(ThresholdsGreenYellowRed(0.1, 1)).
		ColorScheme(ColorSchemeThresholds()).
		DrawStyle(common.GraphDrawStyleLine)
}

// FatalRollbacks returns a stat panel showing failed rollbacks in the past
// 24 hours. Any non-zero value means a partition was halted.
func FatalRollbacks() *stat.PanelBuilder {
	return stat.NewPanelBuilder().
		Title("Failed Rollbacks (24h)").
		Description("Rollbacks that failed and halted a partition").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(StatWidth).
		WithTarget(PromQuery(`sum(increase(ppt_fatal_rollbacks_total[24h]))`, "", "A")).
		Thresholds(ThresholdsGreenYellowRed(1, 1)).
		ColorScheme(ColorSchemeThresholds()).
		ColorMode(common.BigValueColorModeBackground).
		GraphMode(common.BigValueGraphModeNone)
}
