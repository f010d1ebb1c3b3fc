// Package metrics holds the Prometheus collectors for the client layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nostrcore"

// Policy metrics
var (
	PolicyDowngrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_downgrades_total",
			Help:      "Publishes requested as public that were routed private-only.",
		},
		[]string{"reason"},
	)

	RelayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_publishes_total",
			Help:      "Per-relay publish attempts by outcome.",
		},
		[]string{"scope", "outcome"}, // scope: private/public, outcome: ok/rejected/error
	)
)

// Storage gateway metrics
var StorageCipherOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_cipher_total",
		Help:      "Encrypted storage attempts by cipher, operation and outcome.",
	},
	[]string{"cipher", "op", "outcome"},
)

// Wallet metrics
var (
	WalletRPCs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_rpc_total",
			Help:      "Wallet RPC calls by method and outcome.",
		},
		[]string{"method", "outcome"}, // outcome: ok/wallet_error/timeout/error
	)

	WalletRPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wallet_rpc_duration_seconds",
			Help:      "Time from broadcast to terminal state for wallet RPC calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Cache ingestion metrics
var (
	CacheFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_frames_total",
			Help:      "Cache reply frames by type; malformed frames counted as type=malformed.",
		},
		[]string{"type"},
	)

	CacheQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_queries_total",
			Help:      "Cache queries by mode and outcome (complete/partial/error).",
		},
		[]string{"mode", "outcome"},
	)
)
