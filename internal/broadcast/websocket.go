package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gorax/workflow-core/internal/config"
)

// ErrTooManyWatchers is returned by Subscribe when an execution already
// has config.WebSocketConfig.MaxConnectionsPerWorkflow live watchers.
var ErrTooManyWatchers = errors.New("broadcast: too many watchers for this execution")

// subscriber is one live connection watching a single execution.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketBroadcaster fans a snapshot out to every subscriber of an
// execution id: clients grouped by room (here, executionID),
// non-blocking send with a buffered channel per subscriber, dropping
// the message if the subscriber's buffer is full rather than blocking
// the scheduler.
type WebSocketBroadcaster struct {
	mu sync.RWMutex
	rooms map[string]map[*subscriber]struct{}
	logger *slog.Logger
	config config.WebSocketConfig
}

func NewWebSocketBroadcaster(logger *slog.Logger) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{
		rooms: make(map[string]map[*subscriber]struct{}),
		logger: logger,
		config: config.DefaultWebSocketConfig(),
	}
}

// NewWebSocketBroadcasterWithConfig is NewWebSocketBroadcaster with an
// explicit per-deployment config.WebSocketConfig rather than the defaults.
func NewWebSocketBroadcasterWithConfig(logger *slog.Logger, cfg config.WebSocketConfig) *WebSocketBroadcaster {
	return &WebSocketBroadcaster{
		rooms: make(map[string]map[*subscriber]struct{}),
		logger: logger,
		config: cfg,
	}
}

// Subscribe registers conn to receive snapshots for executionID, enforcing
// config.WebSocketConfig's per-execution watcher cap and message size limit.
// Returns an unsubscribe func the caller should defer.
func (b *WebSocketBroadcaster) Subscribe(executionID string, conn *websocket.Conn) (unsubscribe func(), err error) {
	if b.config.MaxMessageSize > 0 {
		conn.SetReadLimit(b.config.MaxMessageSize)
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, 32)}

	b.mu.Lock()
	if b.rooms[executionID] == nil {
		b.rooms[executionID] = make(map[*subscriber]struct{})
	}
	if max := b.config.MaxConnectionsPerWorkflow; max > 0 && len(b.rooms[executionID]) >= max {
		b.mu.Unlock()
		return nil, ErrTooManyWatchers
	}
	b.rooms[executionID][sub] = struct{}{}
	b.mu.Unlock()

	go b.writePump(sub)

	return func() {
		b.mu.Lock()
		delete(b.rooms[executionID], sub)
		if len(b.rooms[executionID]) == 0 {
			delete(b.rooms, executionID)
		}
		b.mu.Unlock()
		close(sub.send)
	}, nil
}

func (b *WebSocketBroadcaster) writePump(sub *subscriber) {
	for msg := range sub.send {
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.logger.Warn("broadcast: write failed, dropping subscriber", "error", err)
			return
		}
	}
}

func (b *WebSocketBroadcaster) Broadcast(executionID string, snapshot ExecutionSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		b.logger.Error("broadcast: encode snapshot", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.rooms[executionID] {
		select {
		case sub.send <- payload:
		default:
			b.logger.Warn("broadcast: subscriber buffer full, dropping update", "execution_id", executionID)
		}
	}
}
