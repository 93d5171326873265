// Package metrics exposes the hub's Prometheus gauges and counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_table_size",
		Help: "Current number of datapoints held in the table",
	})

	IngestionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_ingestions_total",
		Help: "Total number of set/update/touch operations processed",
	})

	KeyPublishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_key_publishes_total",
		Help: "Total number of dserv/keys republications (name-creation events)",
	})

	NotifyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_notify_queue_depth",
		Help: "Current depth of the notify fan-out queue",
	})

	LoggerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_logger_queue_depth",
		Help: "Current depth of the logger fan-out queue",
	})

	SendClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_send_clients",
		Help: "Number of currently registered send clients",
	})

	SendClientQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dserv_send_client_queue_depth",
		Help: "Per send-client queue depth",
	}, []string{"host", "port"})

	SendDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dserv_send_deliveries_total",
		Help: "Total datapoints delivered to send clients",
	}, []string{"host", "port"})

	SendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dserv_send_failures_total",
		Help: "Total write failures that disabled a send client",
	}, []string{"host", "port"})

	LogClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_log_clients",
		Help: "Number of currently open log files",
	})

	LogRecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dserv_log_records_written_total",
		Help: "Total records written per open log file",
	}, []string{"path"})

	LogBufferBypassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dserv_log_buffer_bypass_total",
		Help: "Total coalescing-buffer bypasses (oversized or type-change writes)",
	}, []string{"path"})

	TriggerFiresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_trigger_fires_total",
		Help: "Total trigger script dispatches",
	})

	ScriptErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_script_errors_total",
		Help: "Total script evaluations that returned an error",
	})

	ScriptEvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dserv_script_eval_duration_seconds",
		Help:    "Time spent evaluating a script request",
		Buckets: prometheus.DefBuckets,
	})

	ProcessorAttachments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_processor_attachments",
		Help: "Number of currently attached processors",
	})

	DiskManagerEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_diskmanager_evictions_total",
		Help: "Total closed log segments deleted by the disk-space manager",
	})

	KafkaProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_kafka_produced_total",
		Help: "Total datapoints produced to the Kafka fan-out topic",
	})

	KafkaDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dserv_kafka_dropped_total",
		Help: "Total datapoints routed to the dead-letter queue after the Kafka circuit opened",
	})

	HostGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_host_goroutines",
		Help: "Current goroutine count of the dserv process",
	})

	HostOpenFDs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dserv_host_open_fds",
		Help: "Current open file descriptor count of the dserv process",
	})

	HostDiskFreeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dserv_host_disk_free_bytes",
		Help: "Free bytes on the filesystem backing a sampled path",
	}, []string{"path"})
)
