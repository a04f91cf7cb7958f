package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_hits_total",
			Help: "Pixel hits accepted by the edge.",
		},
		[]string{"kind"},
	)

	QueueDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_queue_drops_total",
			Help: "Records dropped from bounded queues (drop-oldest policy).",
		},
		[]string{"queue"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smartpixl_queue_depth",
			Help: "Current depth of bounded queues.",
		},
		[]string{"queue"},
	)

	HandoffConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartpixl_handoff_connected",
			Help: "Edge handoff stream state (1 connected, 0 otherwise).",
		},
	)

	HandoffRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_handoff_records_total",
			Help: "Records moved through the edge handoff by path (stream, spill).",
		},
		[]string{"path"},
	)

	FailoverReplayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_failover_replay_total",
			Help: "Failover file lines replayed by the forge catch-up scanner.",
		},
		[]string{"result"},
	)

	ReceiverLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_receiver_lines_total",
			Help: "Handoff stream lines decoded by the forge receiver.",
		},
		[]string{"result"},
	)

	EnrichErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_enrich_errors_total",
			Help: "Enrichment steps skipped due to errors.",
		},
		[]string{"step"},
	)

	EnrichDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartpixl_enrich_duration_seconds",
			Help:    "Per-tier enrichment latency.",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"tier"},
	)

	DetectorAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_detector_alerts_total",
			Help: "Edge detector alerts raised.",
		},
		[]string{"detector"},
	)

	GeoCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_geocache_lookups_total",
			Help: "Geo cache lookups by outcome (hot, ttl, miss, negative).",
		},
		[]string{"outcome"},
	)

	OnlineGeoCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_online_geo_calls_total",
			Help: "Upstream online geo API calls by result.",
		},
		[]string{"result"},
	)

	CidrRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_cidr_refresh_total",
			Help: "Datacenter CIDR list refresh attempts by result.",
		},
		[]string{"result"},
	)

	CidrEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartpixl_cidr_entries",
			Help: "Entries in the active datacenter CIDR list.",
		},
	)

	DBWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartpixl_db_write_duration_seconds",
			Help:    "DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	DBRowsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartpixl_db_rows_written_total",
			Help: "Rows written to the relational store.",
		},
		[]string{"table"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartpixl_batch_size",
			Help:    "Batch sizes flushed by the bulk writer.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartpixl_batch_failures_total",
			Help: "Bulk insert batches that failed and were dropped.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		HitsTotal,
		QueueDropsTotal,
		QueueDepth,
		HandoffConnected,
		HandoffRecordsTotal,
		FailoverReplayTotal,
		ReceiverLinesTotal,
		EnrichErrorsTotal,
		EnrichDuration,
		DetectorAlertsTotal,
		GeoCacheLookupsTotal,
		OnlineGeoCallsTotal,
		CidrRefreshTotal,
		CidrEntries,
		DBWriteDuration,
		DBRowsWrittenTotal,
		BatchSize,
		BatchFailuresTotal,
	)
}
