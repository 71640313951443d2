package ws

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"tradeflow.com/internal/quotes/wsmetrics"
	"tradeflow.com/pkg/logger"
	"tradeflow.com/pkg/safe"
)

// 单次最多写多少条，订阅 topic 很多时避免一次写爆
const maxFlush = 64

// Conn LatestOnly：每个 topic 只保留最新一条，写协程被合并唤醒
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	mu     sync.Mutex
	latest map[string][]byte
	notify chan struct{} // 缓冲 1
	closed atomic.Bool
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		ws:     ws,
		hub:    h,
		latest: make(map[string][]byte, 4),
		notify: make(chan struct{}, 1),
	}
}

// Offer 覆盖 topic 的待发消息；连接已关闭返回 false
func (c *Conn) Offer(topic string, payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	if _, ok := c.latest[topic]; ok {
		wsmetrics.DroppedTotal.WithLabelValues("superseded").Inc()
	}
	c.latest[topic] = payload
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *Conn) flushLatest(limit int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latest) == 0 {
		return nil
	}
	out := make([][]byte, 0, min(len(c.latest), limit))
	for k, v := range c.latest {
		out = append(out, v)
		delete(c.latest, k)
		if len(out) >= limit {
			break
		}
	}
	return out
}

type Server struct {
	hub      *Hub
	ctx      context.Context
	upgrader websocket.Upgrader

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		hub: h,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // admin 端口只在内网暴露
		},
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 10,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经回了 4xx
		return
	}
	wsmetrics.OnOpen()
	c := newConn(s.hub, wsConn)
	safe.Go(func() { s.writePump(c) })
	safe.Go(func() { s.readPump(c) })
}

func (s *Server) readPump(c *Conn) {
	code, reason := websocket.CloseNormalClosure, "normal"
	defer func() {
		c.closed.Store(true)
		c.hub.RemoveConn(c)
		select {
		case c.notify <- struct{}{}: // 唤醒写协程退出
		default:
		}
		_ = c.ws.Close()
		wsmetrics.OnClose(code, reason)
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		wsmetrics.PongRecvTotal.Inc()
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			var ne net.Error
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, "client_close"
			case errors.As(err, &ne) && ne.Timeout():
				code, reason = websocket.CloseGoingAway, "pong_timeout"
				wsmetrics.PongTimeoutTotal.Inc()
			default:
				code, reason = websocket.CloseAbnormalClosure, "read_error"
				logger.Debug(s.ctx, "ws read error", zap.Error(err))
			}
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

func (s *Server) writePump(c *Conn) {
	// 打散 ping，避免大量连接同时发
	if s.PingJitter > 0 {
		t := time.NewTimer(rand.N(s.PingJitter))
		select {
		case <-t.C:
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
		case <-c.notify:
			if c.closed.Load() {
				return
			}
			if err := s.flush(c); err != nil {
				logger.Debug(s.ctx, "ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			wsmetrics.PingSentTotal.Inc()
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				wsmetrics.PingErrorsTotal.Inc()
				return
			}
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(s.WriteWait))
			return
		}
	}
}

// flush 一批消息写成一个 text frame，用换行分隔
func (s *Server) flush(c *Conn) error {
	batch := c.flushLatest(maxFlush)
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	n, err := s.writeBatch(c, batch)
	wsmetrics.ObserveWrite(len(batch), n, time.Since(start), err)
	return err
}

func (s *Server) writeBatch(c *Conn, batch [][]byte) (int, error) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return 0, err
	}
	total := 0
	for i, payload := range batch {
		if i > 0 {
			if _, err := w.Write([]byte("\n")); err != nil {
				_ = w.Close()
				return total, err
			}
			total++
		}
		n, err := w.Write(payload)
		total += n
		if err != nil {
			_ = w.Close()
			return total, err
		}
	}
	return total, w.Close()
}
