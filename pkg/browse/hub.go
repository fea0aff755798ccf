package browse

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nicktill/dirview/pkg/config"
	"github.com/nicktill/dirview/pkg/logging"
	"github.com/nicktill/dirview/pkg/metrics"
	"github.com/nicktill/dirview/pkg/presenter"
)

// MessageCellChanged is the type of messages pushed for a cell change.
const MessageCellChanged = "cell_changed"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client.
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// CellMessage is the WebSocket payload for one changed cell.
type CellMessage struct {
	Type string `json:"type"`
	presenter.CellChange
}

// Hub fans cell changes out to connected WebSocket clients. It implements
// presenter.Notifier.
type Hub struct {
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It closes every client connection when ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.SetWebSocketClients(0)
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebSocketClients(count)
			logging.L().Info("websocket client connected", zap.Int("clients", count))
		case conn := <-h.unregister:
			h.remove(conn)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logging.L().Debug("websocket write failed", zap.Error(err))
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebSocketClients(count)
	logging.L().Info("websocket client disconnected", zap.Int("clients", count))
}

// Broadcast sends data as JSON to every client. When the buffer is full
// the message is dropped.
func (h *Hub) Broadcast(data interface{}) error {
	message, err := json.Marshal(data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.RecordWebSocketDrop()
		logging.L().Warn("broadcast channel full, dropping message")
	}
	return nil
}

// NotifyCellChanged pushes one cell_changed message.
func (h *Hub) NotifyCellChanged(ctx context.Context, change presenter.CellChange) {
	msg := CellMessage{Type: MessageCellChanged, CellChange: change}
	if err := h.Broadcast(msg); err != nil {
		logging.WithContext(ctx).Error("failed to encode cell change",
			zap.String("path", change.Path), zap.Error(err))
	}
}

// HasClients returns true if there are any connected WebSocket clients.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the client goes away or the hub stops.
func (h *Handler) HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.WithContext(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		select {
		case hub.register <- conn:
		case <-hub.done:
			conn.Close()
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Pings go through WriteControl, which may run alongside the hub's writes.
		go func() {
			ticker := time.NewTicker(config.WSPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					deadline := time.Now().Add(config.WSWriteDeadline)
					if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
						return
					}
				}
			}
		}()

		defer func() {
			cancel()
			select {
			case hub.unregister <- conn:
			case <-hub.done:
			}
		}()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warn("websocket error", zap.Error(err))
				}
				return
			}
		}
	}
}
