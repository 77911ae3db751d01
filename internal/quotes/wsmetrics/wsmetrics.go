package wsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livefeed"

// keepalive 事件
const (
	PingSent    = "ping_sent"
	PingError   = "ping_error"
	Pong        = "pong"
	PongTimeout = "pong_timeout"
)

var (
	Clients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected trade stream clients",
	})
	ClientsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_clients_closed_total",
		Help:      "Trade stream clients disconnected, by reason",
	}, []string{"reason"}) // eof/client_close/pong_timeout/read_error

	// Subscribers 每个 topic 的订阅数，topic 只有配置的几个交易对
	Subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_subscribers",
		Help:      "Clients subscribed per trade topic",
	}, []string{"topic"})
	SubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_sub_ops_total",
		Help:      "Subscribe / unsubscribe requests",
	}, []string{"op"})
	SnapshotsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_snapshots_replayed_total",
		Help:      "Last trades replayed to clients on subscribe",
	})

	TradesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_trades_out_total",
		Help:      "Trade messages written to clients",
	})
	TradesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_trades_dropped_total",
		Help:      "Trade messages dropped because a client's send queue was full",
	})
	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_bytes_out_total",
		Help:      "Bytes written to trade stream clients",
	})
	WriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_write_errors_total",
		Help:      "Failed frame writes",
	})
	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ws_write_duration_seconds",
		Help:      "Time to write one frame of trades",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms ~ 1s
	})

	KeepaliveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_keepalive_total",
		Help:      "Ping/pong events",
	}, []string{"event"})
)

func OnOpen() { Clients.Inc() }

func OnClose(reason string) {
	Clients.Dec()
	ClientsClosedTotal.WithLabelValues(reason).Inc()
}

func Keepalive(event string) { KeepaliveTotal.WithLabelValues(event).Inc() }

// ObserveWrite 一帧写了 trades 条成交、bytes 字节
func ObserveWrite(trades int, bytes int, dur time.Duration, err error) {
	WriteDuration.Observe(dur.Seconds())
	if err != nil {
		WriteErrorsTotal.Inc()
		return
	}
	TradesOutTotal.Add(float64(trades))
	BytesOutTotal.Add(float64(bytes))
}
