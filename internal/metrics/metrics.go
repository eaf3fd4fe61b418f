package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write path metrics - Track deploys and block proposals
var (
	DeploysSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_deploys_submitted_total",
		Help: "Total number of deploys accepted by the node",
	})

	DeploysRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_deploys_rejected_total",
		Help: "Total number of deploys rejected by the node",
	})

	Proposals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firefly_proposals_total",
			Help: "Total number of block proposals by outcome",
		},
		[]string{"outcome"},
	)

	BootstrapRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_bootstrap_retries_total",
		Help: "Total number of failed node connection attempts during bootstrap",
	})
)

// Read path metrics
var (
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firefly_queries_total",
			Help: "Total number of explore-deploy queries by outcome",
		},
		[]string{"outcome"},
	)
)

// Performance metrics - Track node round trip latency
var (
	NodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firefly_node_request_duration_seconds",
			Help:    "Time taken by node requests by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DatabaseWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "firefly_db_write_duration_seconds",
		Help:    "Time taken to write a deploy journal row",
		Buckets: prometheus.DefBuckets,
	})
)

// Event stream metrics
var (
	EventStreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_event_stream_reconnects_total",
		Help: "Total number of event stream connection attempts after the first",
	})

	NodeEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firefly_node_events_received_total",
			Help: "Total number of node events decoded by kind",
		},
		[]string{"event"},
	)

	NodeEventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_node_events_skipped_total",
		Help: "Total number of non-text or undecodable event frames",
	})

	WalletEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firefly_wallet_events_dropped_total",
		Help: "Total number of wallet events missed by lagging subscribers",
	})

	DeployWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firefly_deploy_waits_total",
			Help: "Total number of finished deploy waits by outcome",
		},
		[]string{"outcome"},
	)
)

// State metrics - Track current subscription state
var (
	ActiveDeployWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firefly_active_deploy_waiters",
		Help: "Number of callers currently waiting for a deploy to finalize",
	})

	ActiveWalletFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "firefly_active_wallet_feeds",
		Help: "Number of wallets with at least one subscriber",
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firefly_errors_total",
			Help: "Total number of errors by service",
		},
		[]string{"service"},
	)
)
