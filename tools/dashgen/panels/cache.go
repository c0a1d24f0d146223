package panels

import (
	"github.com/grafana/grafana-foundation-sdk/go/common"
	"github.com/grafana/grafana-foundation-sdk/go/gauge"
	"github.com/grafana/grafana-foundation-sdk/go/timeseries"
)

// CacheHitRatio returns a gauge panel showing the statistics cache hit ratio.
func CacheHitRatio() *gauge.PanelBuilder {
	return gauge.NewPanelBuilder().
		Title("Stats Cache Hit %").
		Description("Share of statistics served from the cache over the last hour").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(
			`sum(increase(ppt_cache_hits_total[1h])) / (sum(increase(ppt_cache_hits_total[1h])) + sum(increase(ppt_cache_misses_total[1h]))) * 100`,
			"", "A",
		)).
		Unit("percent").
		Min(0).
		Max(100).
		Thresholds(ThresholdsRedGreen(50)).
		ColorScheme(ColorSchemeThresholds())
}

// CacheErrors returns a timeseries panel showing cache errors that fell back
// to direct computation.
func CacheErrors() *timeseries.PanelBuilder {
	return timeseries.NewPanelBuilder().
		Title("Cache Errors / min").
		Description("Cache failures; statistics are still computed directly").
		Datasource(DSRef()).
		Height(TSHeight).
		Span(TSWidth).
		WithTarget(PromQuery(`sum(rate(ppt_cache_errors_total[5m])) * 60`, "errors/min", "A")).
		FillOpacity(10).
		LineWidth(2).
		Thresholds(ThresholdsGreenYellowRed(1, 10)).
		ColorScheme(ColorSchemeThresholds()).
		DrawStyle(common.GraphDrawStyleLine)
}
