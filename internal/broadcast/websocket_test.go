package broadcast

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gorax/workflow-core/internal/config"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestWebSocketBroadcaster_DeliversToSubscriber(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	b := NewWebSocketBroadcaster(logger)

	var serverConn *websocket.Conn
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					t.Fatalf("upgrade: %v", err)
				}
				serverConn = conn
				_, err = b.Subscribe("exec-1", conn)
				if err != nil {
					t.Fatalf("subscribe: %v", err)
				}
				select {}
	}))
	defer srv.Close()

	client := dial(t, srv)
	defer client.Close()
	time.Sleep(10 * time.Millisecond)

	b.Broadcast("exec-1", ExecutionSnapshot{ExecutionID: "exec-1", Status: "running"})

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"exec-1"`) {
		t.Errorf("unexpected payload: %s", msg)
	}
	_ = serverConn
}

func TestWebSocketBroadcaster_NoSubscribersIsNoop(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	b := NewWebSocketBroadcaster(logger)

	b.Broadcast("exec-missing", ExecutionSnapshot{ExecutionID: "exec-missing"})
}

func TestWebSocketBroadcaster_EnforcesMaxConnectionsPerWorkflow(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	b := NewWebSocketBroadcasterWithConfig(logger, config.WebSocketConfig{
			MaxConnectionsPerWorkflow: 1,
	})

	results := make(chan error, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					t.Fatalf("upgrade: %v", err)
				}
				_, err = b.Subscribe("exec-1", conn)
				results <- err
				if err == nil {
					select {}
				}
	}))
	defer srv.Close()

	c1 := dial(t, srv)
	defer c1.Close()
	if err := <-results; err != nil {
		t.Fatalf("first subscriber should be accepted: %v", err)
	}

	c2 := dial(t, srv)
	defer c2.Close()
	err := <-results
	if err != ErrTooManyWatchers {
		t.Errorf("expected ErrTooManyWatchers, got %v", err)
	}
}
