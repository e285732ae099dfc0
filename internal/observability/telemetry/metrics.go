package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveCheckout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caterpos_active_checkout",
		Help: "Whether a checkout session is currently active (0 or 1)",
	})

	CheckoutsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterpos_checkouts_started_total",
		Help: "Total checkout sessions started",
	})

	CheckoutsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterpos_checkouts_cancelled_total",
		Help: "Total checkout sessions cancelled before completion",
	})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caterpos_payments_total",
		Help: "Terminal payment attempts by outcome",
	}, []string{"status"})

	// Infrastructure metrics
	SyncMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caterpos_sync_messages_total",
		Help: "Sync channel messages by type and direction",
	}, []string{"type", "direction"})

	SyncReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterpos_sync_reconnects_total",
		Help: "Sync channel reconnection attempts",
	})

	BackendSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caterpos_backend_sync_failures_total",
		Help: "Best-effort tab pushes to the backend that failed",
	})

	RelayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caterpos_relay_clients",
		Help: "Devices currently connected to the relay",
	})
)
