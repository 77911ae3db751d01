package mdmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livefeed"

var (
	// 上游 websocket
	MessagesInTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_in_total",
		Help:      "Total messages decoded from the exchange feed, partitioned by type",
	}, []string{"type"})
	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_errors_total",
		Help:      "Total exchange messages that failed to decode",
	})
	SequenceGapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sequence_gaps_total",
		Help:      "Total gaps observed in order event sequence numbers",
	})
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Total websocket (re)connection attempts",
	})
	InboxDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbox_dropped_total",
		Help:      "Total messages dropped because the client inbox was full",
	})
	OrderEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_events_total",
		Help:      "Total order events emitted to subscribers, partitioned by kind",
	}, []string{"kind"})

	// feed
	TradesQueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_queued_total",
		Help:      "Total trade bars appended to the feed queue",
	}, []string{"instrument"})
	EventsIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ignored_total",
		Help:      "Total order events ignored by the feed, partitioned by kind",
	}, []string{"kind"})
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Trade bars waiting to be polled",
	}, []string{"instrument"})
	BarsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bars_dispatched_total",
		Help:      "Total bar collections handed to the dispatch loop",
	}, []string{"instrument"})

	// 下游 sink
	SinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_writes_total",
		Help:      "Total sink writes, partitioned by sink and result",
	}, []string{"sink", "result"})
)

// ObserveSink result: ok / error
func ObserveSink(sink string, err error) {
	SinkWritesTotal.WithLabelValues(sink, sinkResult(err)).Inc()
}

func sinkResult(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
