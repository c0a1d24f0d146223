package rules

// RecordingRules returns the pre-computed rates used by the dashboard and
// the alert rules.
func RecordingRules() PrometheusRule {
	return newPrometheusRule("ppt-recording-rules", "ppt-recording",
		record("ppt:http_requests:rate5m", `sum(rate(ppt_http_requests_total[5m]))`),
		record("ppt:http_errors:rate5m", `sum(rate(ppt_http_requests_total{status=~"5.."}[5m]))`),
		record("ppt:ingestion_listings:rate5m", `rate(ppt_ingestion_listings_total[5m])`),
		record("ppt:ingestion_errors:rate5m", `rate(ppt_ingestion_errors_total[5m])`),
		record("ppt:price_history_appends:rate5m", `rate(ppt_price_history_appends_total[5m])`),
		record("ppt:write_failures:rate5m", `rate(ppt_write_failures_total[5m])`),
	)
}
