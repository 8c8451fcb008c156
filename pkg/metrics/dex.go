package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gopherdex"

var (
	EngineCommandTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_command_total",
		Help:      "Commands applied by market actors.",
	}, []string{"market", "cmd", "result"}) // result: ok / reject

	EngineMailboxFullTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_mailbox_full_total",
		Help:      "Commands refused because the market mailbox was full.",
	}, []string{"market"})

	EngineBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "engine_batch_size",
		Help:      "Commands per actor batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	TradeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trade_total",
		Help:      "Matched trades.",
	}, []string{"market"})

	FeeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fee_volume_atoms_total",
		Help:      "Fees collected in quote atoms.",
	}, []string{"market"})

	CrankRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crank_run_total",
		Help:      "Crank attempts per market.",
	}, []string{"market", "result"}) // result: matched / skipped / error

	BroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_total",
		Help:      "Events published to external brokers.",
	}, []string{"broker", "result"})

	LedgerApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_apply_duration_seconds",
		Help:      "Token ledger batch latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
	}, []string{"ledger", "status"})
)
