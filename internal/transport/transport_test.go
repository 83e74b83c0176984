// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	applog "streampump/internal/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingTransport struct {
	sends, closes int
	err           error
}

func (c *countingTransport) Send(any) error { c.sends++; return c.err }
func (c *countingTransport) Close() error   { c.closes++; return c.err }

func TestMultiTriesEveryTransport(t *testing.T) {
	failing := &countingTransport{err: errors.New("boom")}
	ok := &countingTransport{}
	m := Multi{failing, ok}

	assert.EqualError(t, m.Send("x"), "boom")
	assert.EqualError(t, m.Close(), "boom")
	assert.Equal(t, 1, ok.sends)
	assert.Equal(t, 1, ok.closes)
}

type summary string

func (s summary) String() string { return "summary " + string(s) }

func TestLoggingTransport(t *testing.T) {
	prev := applog.GetLevel()
	applog.SetLevel(applog.LevelDebug)
	t.Cleanup(func() { applog.SetLevel(prev) })

	lt := NewLoggingTransport()
	assert.NoError(t, lt.Send(map[string]float64{"bass": 0.5}))
	assert.NoError(t, lt.Send(summary("seq=1")))
	assert.NoError(t, lt.Send(make(chan int))) // not marshalable, still no error
	assert.NoError(t, lt.Close())
}

func dialWS(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr().String()+"/ws", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return wst.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer wst.Close()

	conn := dialWS(t, wst)
	defer conn.Close()

	require.NoError(t, wst.Send(map[string]any{"type": "spectrum", "seq": 1}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "spectrum", got["type"])
	assert.Equal(t, float64(1), got["seq"])
}

func TestWebSocketRateLimit(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", time.Hour)
	require.NoError(t, err)
	defer wst.Close()

	conn := dialWS(t, wst)
	defer conn.Close()

	require.NoError(t, wst.Send(1))
	require.NoError(t, wst.Send(2)) // within the interval, dropped

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "1", string(msg))

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "second payload should have been rate limited")
}

func TestWebSocketCloseDisconnectsClients(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0", 0)
	require.NoError(t, err)

	conn := dialWS(t, wst)
	defer conn.Close()

	require.NoError(t, wst.Close())
	assert.NoError(t, wst.Close(), "second Close is a no-op")
	assert.Equal(t, 0, wst.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

// fakeToken is an already-completed mqtt.Token.
type fakeToken struct{}

func (fakeToken) Wait() bool                     { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (fakeToken) Done() <-chan struct{}          { c := make(chan struct{}); close(c); return c }
func (fakeToken) Error() error                   { return nil }

// fakeClient records publishes. Methods not overridden panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return fakeToken{}
}

func (f *fakeClient) IsConnected() bool { return !f.disconnected }

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

func TestMQTTTransportPublishesJSON(t *testing.T) {
	client := &fakeClient{}
	mt := &MQTTTransport{client: client, topic: "streampump/spectrum"}
	mt.connected.Store(true)

	require.NoError(t, mt.Send(map[string]int{"seq": 3}))
	require.Len(t, client.payloads, 1)
	assert.Equal(t, "streampump/spectrum", client.topics[0])
	assert.JSONEq(t, `{"seq":3}`, string(client.payloads[0]))

	assert.Error(t, mt.Send(make(chan int)))

	require.NoError(t, mt.Close())
	assert.True(t, client.disconnected)
	assert.ErrorIs(t, mt.Send(1), ErrNotConnected)

	published, failed := mt.Counts()
	assert.Equal(t, uint64(1), published)
	assert.Equal(t, uint64(2), failed)
}

func TestNewMQTTTransportRequiresBrokerAndTopic(t *testing.T) {
	_, err := NewMQTTTransport(MQTTOptions{Topic: "x"})
	assert.Error(t, err)
	_, err = NewMQTTTransport(MQTTOptions{Broker: "tcp://localhost:1883"})
	assert.Error(t, err)
}
