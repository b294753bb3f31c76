package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TickBook.
type Metrics struct {
	// --- Ingestion ---
	FilesLoaded    prometheus.Counter
	FilesSkipped   *prometheus.CounterVec
	RowsParsed     prometheus.Counter
	RowsRejected   *prometheus.CounterVec
	EventsFiltered prometheus.Gauge

	// --- Reconstruction & extraction ---
	EventsProcessed prometheus.Counter
	GroupsTotal     *prometheus.CounterVec
	GroupDuration   prometheus.Histogram
	GroupEvents     prometheus.Histogram

	// --- Persistence ---
	PersistBatchDur    prometheus.Histogram
	PersistBatchSize   prometheus.Histogram
	PersistRowsWritten *prometheus.CounterVec
	PersistErrors      *prometheus.CounterVec
	PersistRetry       prometheus.Counter
	PersistQueueDepth  prometheus.Gauge

	// --- Publishing ---
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter

	// --- Run ---
	RunDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	groupBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		// Ingestion
		FilesLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_files_loaded_total",
			Help: "Archive CSV files read successfully",
		}),

		FilesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tickbook_files_skipped_total",
			Help: "Archive files skipped (empty, unreadable)",
		}, []string{"reason"}),

		RowsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_rows_parsed_total",
			Help: "Tick rows parsed into events",
		}),

		RowsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tickbook_rows_rejected_total",
			Help: "Tick rows rejected during parsing",
		}, []string{"reason"}),

		EventsFiltered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tickbook_events_filtered",
			Help: "Events remaining after ticker/time/session filters",
		}),

		// Reconstruction & extraction
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_events_processed_total",
			Help: "Events consumed by the book reconstructor",
		}),

		GroupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tickbook_groups_total",
			Help: "Per-(date,instrument) groups by outcome",
		}, []string{"status"}),

		GroupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickbook_group_duration_seconds",
			Help:    "Time to reconstruct and extract one group",
			Buckets: groupBuckets,
		}),

		GroupEvents: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickbook_group_events",
			Help:    "Events per group",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		}),

		// Persistence
		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickbook_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickbook_persist_batch_size",
			Help:    "Daily records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tickbook_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}, []string{"table"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tickbook_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tickbook_persist_queue_depth",
			Help: "Current items in the persist channel",
		}),

		// Publishing
		RecordsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_records_published_total",
			Help: "Daily records published to NATS",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tickbook_publish_errors_total",
			Help: "Failed NATS publishes",
		}),

		// Run
		RunDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tickbook_run_duration_seconds",
			Help: "Wall time of the last completed run",
		}),
	}
}

// SetQueueDepth updates the persist channel gauge.
func (m *Metrics) SetQueueDepth(size int) {
	m.PersistQueueDepth.Set(float64(size))
}
