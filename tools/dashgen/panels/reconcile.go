package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/stat"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// SweepDeletions returns a timeseries panel showing listings removed by
// reconciliation.
func SweepDeletions() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Listings Removed").
		Description("Listings deleted because they left the upstream feed").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(
			`sum by (partition) (increase(ppt_sweep_deleted_total[1h]))`,
			"{{partition}}", "A",
		)).
		FillOpacity(10).
		LineWidth(2).
		Thresholds(ThresholdsGreenOnly()).
		ColorScheme(ColorSchemePaletteClassic()).
		DrawStyle(common.GraphDrawStyleBars)
}

// SweepRefusals returns a stat panel showing sweeps refused because the
// active set was empty.
func SweepRefusals() *stat.PanelBuilder {
	return stat.NewPanelBuilder().
		Title("Refused Sweeps (24h)").
		Description("Reconciliations skipped because the feed returned no listings").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(`sum(increase(ppt_sweep_refused_total[24h]))`, "", "A")).
		Thresholds(ThresholdsGreenYellowRed(1, 3)).
		ColorScheme(ColorSchemeThresholds()).
		ColorMode(common.BigValueColorModeBackground).
		GraphMode(common.BigValueGraphModeArea)
}
