package event

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newWSTestServer(t *testing.T, em *Emitter) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &WSHandler{
		emitter: em,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForSubscriber blocks until the ws handler has registered its listener,
// so events emitted by the test cannot race the subscription.
func waitForSubscriber(t *testing.T, em *Emitter) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		em.mu.RLock()
		n := len(em.allListeners)
		em.mu.RUnlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ws client never subscribed")
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	return msg
}

func TestWSHandlerDeliversRunLifecycleEvents(t *testing.T) {
	em := NewEmitter()
	srv := newWSTestServer(t, em)
	conn := dialWS(t, srv, "")
	waitForSubscriber(t, em)

	em.Emit(RunStartedEvent{ConversationID: "conv-1", RunToken: "tok-1"})
	em.Emit(RunCompletedEvent{ConversationID: "conv-1", RunToken: "tok-1", Status: "completed"})

	started := readWSMessage(t, conn)
	if started.Event != RunStarted {
		t.Fatalf("first event = %q, want %q", started.Event, RunStarted)
	}
	if started.Data["conversation_id"] != "conv-1" || started.Data["run_token"] != "tok-1" {
		t.Fatalf("started payload = %+v", started.Data)
	}
	if started.TS == 0 {
		t.Fatal("timestamp missing")
	}

	completed := readWSMessage(t, conn)
	if completed.Event != RunCompleted {
		t.Fatalf("second event = %q, want %q", completed.Event, RunCompleted)
	}
	if completed.Data["status"] != "completed" {
		t.Fatalf("completed payload = %+v", completed.Data)
	}
}

func TestWSHandlerEventFilter(t *testing.T) {
	em := NewEmitter()
	srv := newWSTestServer(t, em)
	conn := dialWS(t, srv, "?events="+RunCompleted)
	waitForSubscriber(t, em)

	em.Emit(RunStartedEvent{ConversationID: "conv-2", RunToken: "tok-2"})
	em.Emit(RunCompletedEvent{ConversationID: "conv-2", RunToken: "tok-2", Status: "cancelled"})

	// The filtered-out started event must not arrive; the first message on
	// the wire is the completion.
	msg := readWSMessage(t, conn)
	if msg.Event != RunCompleted {
		t.Fatalf("filtered client received %q", msg.Event)
	}
	if msg.Data["status"] != "cancelled" {
		t.Fatalf("payload = %+v", msg.Data)
	}
}

func TestEmitterUnsubscribeStopsDelivery(t *testing.T) {
	em := NewEmitter()
	var got []string
	off := em.On(RunStarted, func(ev Event) {
		got = append(got, ev.EventName())
	})

	em.Emit(RunStartedEvent{ConversationID: "c", RunToken: "t"})
	off()
	em.Emit(RunStartedEvent{ConversationID: "c", RunToken: "t"})

	if len(got) != 1 {
		t.Fatalf("listener fired %d times after unsubscribe, want 1", len(got))
	}
}
