package rules

// AlertRules returns the operational alerts for property-price-tracker.
func AlertRules() PrometheusRule {
	return newPrometheusRule("ppt-alerts", "ppt-alerts",
		alert("PptDown", `absent(up{job="property-price-tracker"})`, "2m", SeverityCritical,
			"Property Price Tracker is down",
			"The property-price-tracker job has been absent for more than 2 minutes."),
		alert("PptReadinessDown", `ppt_readyz_up == 0`, "2m", SeverityCritical,
			"Property Price Tracker cannot reach its datastore",
			"The readiness probe has been reporting not-ready for more than 2 minutes."),
		alert("PptPartitionHalted", `max by (partition) (ppt_partition_halted) == 1`, "0m", SeverityCritical,
			"Ingestion halted for partition {{ $labels.partition }}",
			"A rollback failed. Inspect the datastore, then resume the partition with `ppt partitions resume`. "+
				"The halt persists across restarts until resumed."),
		alert("PptHighErrorRate", `ppt:http_errors:rate5m / ppt:http_requests:rate5m > 0.05`, "5m", SeverityWarning,
			"High HTTP error rate on Property Price Tracker",
			"More than 5% of HTTP requests are returning 5xx errors over the last 5 minutes."),
		alert("PptIngestionErrors", `sum(ppt:ingestion_errors:rate5m) > 0`, "15m", SeverityWarning,
			"Ingestion errors detected",
			"Listing upserts have been failing for more than 15 minutes."),
		alert("PptSweepRefused", `increase(ppt_sweep_refused_total[1h]) > 0`, "0m", SeverityWarning,
			"Reconciliation refused for partition {{ $labels.partition }}",
			"The feed returned an empty active set, so no listings were removed. Check the feed source."),
		alert("PptNotificationFailures", `increase(ppt_notification_failures_total[5m]) > 0`, "1m", SeverityWarning,
			"Notification delivery failures detected",
			"One or more operator notifications (Discord webhooks) have failed to send."),
	)
}
