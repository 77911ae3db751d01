package ws

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherex.com/livefeed/internal/quotes/wsmetrics"
)

func TestHub_ReplaysSnapshotOnSubscribe(t *testing.T) {
	h := NewHub()
	h.Publish("trade:coinbase:BTC-USD", []byte(`{"price":"1"}`))

	c := NewConn(h, nil, 4)
	h.Subscribe(c, []string{"trade:coinbase:BTC-USD", "trade:coinbase:ETH-USD"})

	require.Len(t, c.send, 1)
	assert.JSONEq(t, `{"price":"1"}`, string(<-c.send))
	assert.Equal(t, 1, h.Subscribers("trade:coinbase:ETH-USD"))
}

func TestHub_PublishFanout(t *testing.T) {
	h := NewHub()
	a, b := NewConn(h, nil, 4), NewConn(h, nil, 4)
	h.Subscribe(a, []string{"t1"})
	h.Subscribe(b, []string{"t1", "t2"})

	h.Publish("t1", []byte("x"))
	h.Publish("t2", []byte("y"))

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 2)

	h.Unsubscribe(b, []string{"t1"})
	h.Publish("t1", []byte("z"))
	assert.Len(t, a.send, 2)
	assert.Len(t, b.send, 2)

	h.RemoveConn(a)
	assert.Equal(t, 0, h.Subscribers("t1"))
}

func TestConn_OfferDropsWhenFull(t *testing.T) {
	c := NewConn(NewHub(), nil, 1)
	assert.True(t, c.Offer([]byte("1")))
	assert.False(t, c.Offer([]byte("2")))

	c.closed.Store(true)
	<-c.send
	assert.False(t, c.Offer([]byte("3")))
}

func TestHub_PublishCopiesPayload(t *testing.T) {
	h := NewHub()
	c := NewConn(h, nil, 1)
	h.Subscribe(c, []string{"t"})

	buf := []byte("abc")
	h.Publish("t", buf)
	buf[0] = 'x'

	assert.Equal(t, "abc", string(<-c.send))
}

func TestHub_SubscriberGaugeAndDrops(t *testing.T) {
	const topic = "trade:coinbase:SOL-USD"
	gauge := wsmetrics.Subscribers.WithLabelValues(topic)
	drops := testutil.ToFloat64(wsmetrics.TradesDroppedTotal)
	replays := testutil.ToFloat64(wsmetrics.SnapshotsReplayedTotal)

	h := NewHub()
	h.Publish(topic, []byte("1"))
	a, b := NewConn(h, nil, 1), NewConn(h, nil, 1)
	h.Subscribe(a, []string{topic})
	h.Subscribe(b, []string{topic})
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))
	assert.Equal(t, replays+2, testutil.ToFloat64(wsmetrics.SnapshotsReplayedTotal))

	// 快照已占满队列，下一笔被丢
	h.Publish(topic, []byte("2"))
	assert.Equal(t, drops+2, testutil.ToFloat64(wsmetrics.TradesDroppedTotal))

	h.Unsubscribe(a, []string{topic})
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	h.RemoveConn(b)
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
}
