package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	BatchesTotal       prometheus.Counter
	MessagesFetched    prometheus.Counter
	MessagesSucceeded  prometheus.Counter
	MessagesSkipped    prometheus.Counter
	MessagesFailed     prometheus.Counter
	ExtractionRetries  prometheus.Counter
	QuotesEmitted      prometheus.Counter
	BatchDuration      prometheus.Histogram
	ExtractionDuration prometheus.Histogram
	QueueDepth         prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_batches_total",
			Help: "Total number of batch ingestion runs",
		}),
		MessagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_messages_fetched_total",
			Help: "Total number of messages fetched from the mailbox",
		}),
		MessagesSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_messages_succeeded_total",
			Help: "Total number of messages processed through quote emission",
		}),
		MessagesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_messages_skipped_total",
			Help: "Total number of messages skipped as duplicates",
		}),
		MessagesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_messages_failed_total",
			Help: "Total number of messages that exhausted their retry budget",
		}),
		ExtractionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_extraction_retries_total",
			Help: "Total number of message level extraction retries",
		}),
		QuotesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "travel_agent_quotes_emitted_total",
			Help: "Total number of quote documents emitted",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "travel_agent_batch_duration_seconds",
			Help:    "Wall clock time of one batch ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		ExtractionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "travel_agent_extraction_duration_seconds",
			Help:    "Time spent per extraction backend call chain",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "travel_agent_queue_depth",
			Help: "Number of messages currently queued or in flight",
		}),
	}
}
