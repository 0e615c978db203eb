package migrate

import "github.com/prometheus/client_golang/prometheus"

// RowsMigratedTotal counts rows written to the destination, labelled by
// destination table.
var RowsMigratedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "syn2mas",
		Subsystem: "migration",
		Name:      "rows_written_total",
		Help:      "Total number of rows written to the MAS database, by destination table.",
	},
	[]string{"table"},
)

// StageDuration tracks how long each migration stage took to run.
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "syn2mas",
		Subsystem: "migration",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each migration stage in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"stage"},
)

// DeviceIPParseFailuresTotal counts devices whose last-seen IP could not be
// parsed (§4.10); the migration proceeds with a null IP and logs a warning
// rather than aborting.
var DeviceIPParseFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "syn2mas",
		Subsystem: "migration",
		Name:      "device_ip_parse_failures_total",
		Help:      "Total number of device last-seen IPs that failed to parse and were stored as null.",
	},
)

// Collectors returns all syn2mas-specific metrics for registration with a
// prometheus.Registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RowsMigratedTotal,
		StageDuration,
		DeviceIPParseFailuresTotal,
	}
}
