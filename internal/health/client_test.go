package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer runs script for every accepted websocket connection
type streamServer struct {
	*httptest.Server
	connections atomic.Int32
}

func newStreamServer(t *testing.T, script func(n int32, conn *websocket.Conn)) *streamServer {
	t.Helper()
	s := &streamServer{}
	upgrader := websocket.Upgrader{}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(s.connections.Add(1), conn)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/health"
}

// holdOpen keeps the socket open until the client goes away
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
	}
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return Event{}
	}
}

func subscribeAll(c *StreamClient, r *recorder) {
	for _, typ := range []EventType{EventConnection, EventDisconnect, EventHealthUpdate, EventHealthAlert, EventHistory} {
		c.On(typ, r.handle)
	}
}

func TestStreamClient_ReconnectAfterDrop(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"health_update","platform":"twitter","status":"healthy"}`))
			// abrupt close without a close frame
			conn.UnderlyingConn().Close()
			return
		}
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL(), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, rec.next(t).Type)
	update := rec.next(t)
	assert.Equal(t, EventHealthUpdate, update.Type)
	assert.Equal(t, "twitter", update.Update.Platform)
	disconnect := rec.next(t)
	assert.Equal(t, EventDisconnect, disconnect.Type)
	assert.Error(t, disconnect.Err)
	assert.Equal(t, EventConnection, rec.next(t).Type)

	assert.Eventually(t, client.IsConnected, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), server.connections.Load())
}

func TestStreamClient_DropsMalformedFrames(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"health_alert","alert":{"platform":"twitter","severity":"bogus"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"health_alert","alert":{"platform":"twitter","severity":"critical","message":"API down"}}`))
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL(), WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, rec.next(t).Type)
	alert := rec.next(t)
	require.Equal(t, EventHealthAlert, alert.Type)
	assert.Equal(t, "API down", alert.Alert.Message)

	assert.True(t, client.IsConnected())
	assert.Equal(t, int32(1), server.connections.Load())
}

func TestStreamClient_AnswersPing(t *testing.T) {
	pong := make(chan string, 1)
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_, data, err := conn.ReadMessage()
		if err == nil {
			pong <- string(data)
		}
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL())
	client.Connect()
	defer client.DisconnectAll()

	select {
	case msg := <-pong:
		assert.JSONEq(t, `{"type":"pong"}`, msg)
	case <-time.After(3 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestStreamClient_ConnectIsIdempotent(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL())
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, rec.next(t).Type)
	client.Connect()

	select {
	case e := <-rec.ch:
		t.Fatalf("unexpected event %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int32(1), server.connections.Load())
}

func TestStreamClient_DisconnectAllStopsReconnects(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		// refuse every session straight away
	})

	client := NewStreamClient(server.wsURL(), WithBackoff(5*time.Millisecond, 5*time.Millisecond))
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	assert.Eventually(t, func() bool { return server.connections.Load() >= 3 }, 3*time.Second, 5*time.Millisecond)

	client.DisconnectAll()
	assert.Equal(t, StateClosed, client.State())
	assert.False(t, client.IsConnected())

	settled := server.connections.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, server.connections.Load())
}

func TestStreamClient_DisconnectAllClearsHandlers(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL())
	first := newRecorder()
	subscribeAll(client, first)

	client.Connect()
	assert.Equal(t, EventConnection, first.next(t).Type)
	client.DisconnectAll()

	second := newRecorder()
	client.On(EventConnection, second.handle)
	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, second.next(t).Type)
	select {
	case e := <-first.ch:
		t.Fatalf("handler from before teardown received %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamClient_HandlerOrderAndUnsubscribe(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"health_update","platform":"twitter","status":"healthy"}`))
		}
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL())

	var mu sync.Mutex
	var calls []string
	done := make(chan struct{}, 4)
	record := func(name string) Handler {
		return func(Event) {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			done <- struct{}{}
		}
	}

	var unsubscribeB func()
	client.On(EventHealthUpdate, func(e Event) {
		record("a")(e)
		if unsubscribeB != nil {
			unsubscribeB()
		}
	})
	unsubscribeB = client.On(EventHealthUpdate, record("b"))
	client.On(EventHealthUpdate, record("c"))

	client.Connect()
	defer client.DisconnectAll()

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for handlers")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "c", "a", "c"}, calls)
}

func TestStreamClient_DropsSilentConnection(t *testing.T) {
	silent := make(chan struct{})
	t.Cleanup(func() { close(silent) })

	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			// never reads, so pings go unanswered
			<-silent
			return
		}
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL(),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithKeepAlive(20*time.Millisecond, 100*time.Millisecond),
	)
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, rec.next(t).Type)
	disconnect := rec.next(t)
	require.Equal(t, EventDisconnect, disconnect.Type)
	assert.Error(t, disconnect.Err)
	assert.Equal(t, EventConnection, rec.next(t).Type)

	// Answered pings keep the second connection alive well past the wait
	time.Sleep(400 * time.Millisecond)
	assert.True(t, client.IsConnected())
	assert.Equal(t, int32(2), server.connections.Load())
}

func TestStreamClient_DropsOversizedFrame(t *testing.T) {
	server := newStreamServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			big := `{"type":"health_update","platform":"twitter","status":"healthy","details":"` + strings.Repeat("x", 1024) + `"}`
			conn.WriteMessage(websocket.TextMessage, []byte(big))
		} else {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"health_update","platform":"linkedin","status":"healthy"}`))
		}
		holdOpen(conn)
	})

	client := NewStreamClient(server.wsURL(),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithReadLimit(256),
	)
	rec := newRecorder()
	subscribeAll(client, rec)

	client.Connect()
	defer client.DisconnectAll()

	assert.Equal(t, EventConnection, rec.next(t).Type)
	disconnect := rec.next(t)
	require.Equal(t, EventDisconnect, disconnect.Type)
	assert.ErrorIs(t, disconnect.Err, websocket.ErrReadLimit)
	assert.Equal(t, EventConnection, rec.next(t).Type)

	update := rec.next(t)
	require.Equal(t, EventHealthUpdate, update.Type)
	assert.Equal(t, "linkedin", update.Update.Platform)
}
