// Package metrics exposes prometheus collectors for the ingestion
// pipeline and the outbound notification path.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CursorHeight is the persisted scan cursor.
	CursorHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_cursor_height",
		Help: "Greatest block height for which all tick work succeeded",
	})

	// ChainHead is the indexer's last indexed block.
	ChainHead = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_chain_head",
		Help: "Last block height indexed upstream",
	})

	// TrackedWallets is the number of distinct primary addresses.
	TrackedWallets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_wallets",
		Help: "Distinct tracked primary addresses",
	})

	// TicksTotal counts pipeline ticks by outcome
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ticks_total",
			Help: "Pipeline ticks by outcome",
		},
		[]string{"outcome"},
	)

	// EventsDispatched counts dispatched events by kind
	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_dispatched_total",
			Help: "Events handed to the notifier by kind",
		},
		[]string{"kind"},
	)

	// RPCRequestsTotal counts chain RPC requests by status
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_rpc_requests_total",
			Help: "Chain RPC requests by status",
		},
		[]string{"status"},
	)

	// MessagesSent counts outbound chat messages by status
	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_messages_sent_total",
			Help: "Outbound chat messages by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(CursorHeight)
	prometheus.MustRegister(ChainHead)
	prometheus.MustRegister(TrackedWallets)
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(EventsDispatched)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(MessagesSent)
}

// StartServer starts the metrics HTTP server on the given address.
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("[metrics] listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}
