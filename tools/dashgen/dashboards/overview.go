// Package dashboards assembles Grafana dashboard definitions from panel builders.
package dashboards

import (
	"github.com/grafana/grafana-foundation-sdk/go/dashboard"

	"github.com/donaldgifford/property-price-tracker/tools/dashgen/panels"
)

// BuildOverview constructs the PPT Overview dashboard with all metric rows.
func BuildOverview() *dashboard.DashboardBuilder {
	b := dashboard.NewDashboardBuilder("PPT Overview").
		Uid("ppt-overview").
		Tags([]string{"ppt", "property-price-tracker"}).
		Refresh("30s").
		Time("now-6h", "now").
		Timezone("browser").
		Editable().
		Tooltip(dashboard.DashboardCursorSyncCrosshair).
		WithVariable(datasourceVar())

	b.WithRow(dashboard.NewRowBuilder("Overview").
		WithPanel(panels.HealthzStat()).
		WithPanel(panels.ReadyzStat()).
		WithPanel(panels.HaltedPartitions()).
		WithPanel(panels.UptimeStat()))

	b.WithRow(dashboard.NewRowBuilder("HTTP").
		WithPanel(panels.RequestRate()).
		WithPanel(panels.LatencyPercentiles()).
		WithPanel(panels.ErrorRate()))

	b.WithRow(dashboard.NewRowBuilder("Ingestion").
		WithPanel(panels.ListingsRate()).
		WithPanel(panels.IngestionErrors()).
		WithPanel(panels.CycleDuration()).
		WithPanel(panels.PriceChanges()).
		WithPanel(panels.FeedSnapshots()))

	b.WithRow(dashboard.NewRowBuilder("Writes").
		WithPanel(panels.BatchWriteLatency()).
		WithPanel(panels.WriteFailures()).
		WithPanel(panels.FatalRollbacks()))

	b.WithRow(dashboard.NewRowBuilder("Reconciliation").
		WithPanel(panels.SweepDeletions()).
		WithPanel(panels.SweepRefusals()))

	b.WithRow(dashboard.NewRowBuilder("Stats Cache").
		WithPanel(panels.CacheHitRatio()).
		WithPanel(panels.CacheErrors()))

	b.WithRow(dashboard.NewRowBuilder("Notifications").
		WithPanel(panels.NotificationLatency()).
		WithPanel(panels.NotificationFailures()))

	return b
}

func datasourceVar() *dashboard.DatasourceVariableBuilder {
	return dashboard.NewDatasourceVariableBuilder("datasource").
		Label("Datasource").
		Type("prometheus")
}
