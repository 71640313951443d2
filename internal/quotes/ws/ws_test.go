package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeflow.com/internal/quotes/gateway"
)

const topic = "export:status:BTC-USDT"

func dial(t *testing.T, ctx context.Context, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(ctx, hub))
	t.Cleanup(srv.Close)

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(dctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func subscribe(t *testing.T, c *websocket.Conn, topics ...string) {
	t.Helper()
	b, _ := json.Marshal(ClientMsg{Type: "sub", Topics: topics})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func read(c *websocket.Conn) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, raw, err := c.Read(ctx)
	return raw, err
}

func readMsg(t *testing.T, c *websocket.Conn) ServerMsg {
	t.Helper()
	raw, err := read(c)
	require.NoError(t, err)
	var m ServerMsg
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestWS_BridgeToClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := gateway.NewMemBroker()
	defer broker.Close()
	hub := NewHub()
	go func() { _ = Bridge(ctx, broker, hub, []string{topic}) }()

	c := dial(t, ctx, hub)
	subscribe(t, c, topic)
	require.Eventually(t, func() bool { return hub.Conns() == 1 }, time.Second, 5*time.Millisecond)

	// Bridge 的订阅是异步建立的，重复发布直到收到
	type result struct {
		raw []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := read(c)
		done <- result{raw, err}
	}()
	var r result
	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, topic, []byte(`{"symbol":"BTC-USDT","status":" (Sent: 3)"}`))
		select {
		case r = <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, r.err)

	var got ServerMsg
	require.NoError(t, json.Unmarshal(r.raw, &got))
	assert.Equal(t, "status", got.Type)
	assert.Equal(t, topic, got.Topic)
	assert.JSONEq(t, `{"symbol":"BTC-USDT","status":" (Sent: 3)"}`, string(got.Data))
}

func TestWS_SnapshotOnSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	out, _ := json.Marshal(ServerMsg{Type: "status", Topic: topic, Data: []byte(`{"total_sent":7}`)})
	hub.Publish(topic, out)

	c := dial(t, ctx, hub)
	subscribe(t, c, topic)

	m := readMsg(t, c)
	assert.Equal(t, topic, m.Topic)
	assert.JSONEq(t, `{"total_sent":7}`, string(m.Data))
}

func TestHub_UnsubscribeAndRemove(t *testing.T) {
	hub := NewHub()
	c := &Conn{latest: map[string][]byte{}, notify: make(chan struct{}, 1)}

	hub.Subscribe(c, []string{topic, "export:status:ETH-USDT"})
	assert.Equal(t, 1, hub.Conns())

	hub.Publish(topic, []byte("a"))
	hub.Publish(topic, []byte("b"))
	batch := c.flushLatest(maxFlush)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", string(batch[0]))

	hub.Unsubscribe(c, []string{topic})
	hub.Publish(topic, []byte("c"))
	assert.Empty(t, c.flushLatest(maxFlush))

	hub.RemoveConn(c)
	assert.Equal(t, 0, hub.Conns())
}

func TestMsgType(t *testing.T) {
	assert.Equal(t, "status", msgType("export:status:BTC-USDT"))
	assert.Equal(t, "plain", msgType("plain"))
}
