package realtime

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/repfit/repfit/internal/services"
	"github.com/repfit/repfit/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Subscribers are read-only; anything beyond a pong-sized frame is abuse.
	maxMessageSize = 512

	sendBufferSize = 64
)

// Hub fans attendance events out to websocket subscribers. Each subscriber
// watches exactly one gym's feed; slow consumers are dropped rather than
// allowed to stall the broadcast.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	upgrader    websocket.Upgrader
}

// NewHub constructs an attendance event hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
}

// Publish delivers an attendance event to every subscriber of its gym. It is
// safe to call from any goroutine and never blocks on a slow client.
func (h *Hub) Publish(event services.AttendanceEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[event.GymID] {
		select {
		case sub.send <- event:
		default:
			logger.Warn("attendance feed dropping slow subscriber",
				zap.String("gym_id", event.GymID),
				zap.String("user_id", sub.userID),
			)
			// close() re-locks the hub; it cannot run under the read lock.
			go sub.close()
		}
	}
}

// SubscriberCount reports the number of live subscribers for a gym.
func (h *Hub) SubscriberCount(gymID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[gymID])
}

// Serve upgrades the request to a websocket and streams the gym's attendance
// events until the client disconnects. Authorisation happens before this is
// called.
func (h *Hub) Serve(gymID, userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("attendance feed upgrade failed", zap.Error(err))
		return
	}

	sub := &subscriber{
		hub:    h,
		socket: conn,
		gymID:  gymID,
		userID: userID,
		send:   make(chan services.AttendanceEvent, sendBufferSize),
	}
	h.register(sub)

	go sub.writeLoop()
	sub.readLoop()
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[sub.gymID] == nil {
		h.subscribers[sub.gymID] = make(map[*subscriber]struct{})
	}
	h.subscribers[sub.gymID][sub] = struct{}{}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gym := h.subscribers[sub.gymID]
	delete(gym, sub)
	if len(gym) == 0 {
		delete(h.subscribers, sub.gymID)
	}
}

type subscriber struct {
	hub    *Hub
	socket *websocket.Conn
	gymID  string
	userID string
	send   chan services.AttendanceEvent
	once   sync.Once
}

func (s *subscriber) readLoop() {
	defer s.close()

	s.socket.SetReadLimit(maxMessageSize)
	_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
	s.socket.SetPongHandler(func(string) error {
		_ = s.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Drain and discard client frames; the feed is one-way.
	for {
		if _, _, err := s.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Debug("attendance feed closed unexpectedly",
					zap.String("user_id", s.userID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (s *subscriber) writeLoop() {
	defer s.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.send:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		s.hub.unregister(s)
		close(s.send)
		_ = s.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
