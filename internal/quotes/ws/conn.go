package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/wsmetrics"
	"gopherex.com/livefeed/pkg/logger"
	"gopherex.com/livefeed/pkg/safe"
)

type Conn struct {
	id string

	ws     *websocket.Conn
	hub    *Hub
	send   chan []byte // 满了直接丢，慢客户端自己承担
	done   chan struct{}
	closed atomic.Bool

	lastPongUnix atomic.Int64 // time.Now().UnixNano()
}

func NewConn(h *Hub, ws *websocket.Conn, sendBuf int) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		hub:  h,
		send: make(chan []byte, sendBuf),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Offer 非阻塞入队，payload 调用方不能再改
func (c *Conn) Offer(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		wsmetrics.TradesDroppedTotal.Inc()
		return false
	}
}

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context
	SendBuf  int // per-conn send chan size

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64

	log *zap.Logger
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 行情只读推送，不校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		SendBuf:    1024,
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 10,
		log:        logger.Named("ws"),
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := NewConn(s.Hub, wsConn, s.SendBuf)
	wsmetrics.OnOpen()
	safe.Go(func() { s.writePump(c) })
	safe.Go(func() { s.readPump(c) })
}

func (s *Server) readPump(c *Conn) {
	reason := "eof"
	defer func() {
		c.closed.Store(true)
		close(c.done)
		c.hub.RemoveConn(c)
		_ = c.ws.Close()
		wsmetrics.OnClose(reason)
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	c.lastPongUnix.Store(time.Now().UnixNano())
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		wsmetrics.Keepalive(wsmetrics.Pong)
		c.lastPongUnix.Store(time.Now().UnixNano())
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				wsmetrics.Keepalive(wsmetrics.PongTimeout)
				reason = "pong_timeout"
			case errors.As(err, &ce):
				reason = "client_close"
			default:
				reason = "read_error"
			}
			s.log.Debug("read stopped", zap.String("conn", c.id), zap.Error(err))
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			c.hub.Subscribe(c, msg.Topics)
		case "unsub":
			c.hub.Unsubscribe(c, msg.Topics)
		}
	}
}

const maxFlush = 256 // 单次最多写多少条，防止积压时一次写爆

func (s *Server) writePump(c *Conn) {
	// ping 错开，避免所有连接同一时刻发
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-c.done:
			t.Stop()
			return
		case <-s.ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case first := <-c.send:
			batch := [][]byte{first}
			for len(batch) < maxFlush {
				select {
				case b := <-c.send:
					batch = append(batch, b)
					continue
				default:
				}
				break
			}
			if err := s.writeBatch(c, batch); err != nil {
				s.log.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			wsmetrics.Keepalive(wsmetrics.PingSent)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.WriteWait)); err != nil {
				wsmetrics.Keepalive(wsmetrics.PingError)
				return
			}
		case <-c.done:
			return
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(s.WriteWait))
			return
		}
	}
}

// writeBatch 一次 NextWriter 写完本批，多条 JSON 用换行分隔
func (s *Server) writeBatch(c *Conn, batch [][]byte) (err error) {
	start := time.Now()
	n := 0
	defer func() { wsmetrics.ObserveWrite(len(batch), n, time.Since(start), err) }()

	_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	for i, payload := range batch {
		if i > 0 {
			if _, err = w.Write([]byte("\n")); err != nil {
				_ = w.Close()
				return err
			}
			n++
		}
		if _, err = w.Write(payload); err != nil {
			_ = w.Close()
			return err
		}
		n += len(payload)
	}
	return w.Close()
}
