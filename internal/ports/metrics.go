package ports

// Metric names understood by Observability implementations.
const (
	MetricPointsRead       = "bridge_points_read_total"
	MetricReadingsSent     = "bridge_readings_sent_total"
	MetricSendErrors       = "bridge_send_errors_total"
	MetricConnectFailures  = "bridge_source_connect_failures_total"
	MetricSessionsOpened   = "bridge_source_sessions_total"
	MetricUnexpectedErrors = "bridge_unexpected_errors_total"
	MetricSourceConnected  = "bridge_source_connected"
	MetricCycleDuration    = "bridge_poll_cycle_seconds"
	MetricReadErrorsByKind = "bridge_read_errors_total"
)
