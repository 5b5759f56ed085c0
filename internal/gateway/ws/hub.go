package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/weftlabs/weft/internal/events"
)

// outboundQueueSize bounds per-session buffering. A session that falls
// this far behind starts losing frames rather than stalling the bus.
const outboundQueueSize = 256

// session is one connected WebSocket consumer. Sessions only receive;
// commands go through the HTTP API.
type session struct {
	conn     *websocket.Conn
	outbound chan []byte
}

// Hub fans engine events out to WebSocket sessions.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[*session]struct{}
	unsubscribe func()
}

// NewHub creates a hub subscribed to every event on the bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{sessions: make(map[*session]struct{})}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.TaskID, e)
		if err != nil {
			slog.Error("ws event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("ws marshal frame", "error", err)
			return
		}

		h.mu.RLock()
		for s := range h.sessions {
			select {
			case s.outbound <- data:
			default:
				// slow consumer, frame dropped
			}
		}
		h.mu.RUnlock()
	})

	return h
}

// ServeWS upgrades the request and streams events until the peer goes
// away or the hub closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local gateway, any origin
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	s := &session{
		conn:     conn,
		outbound: make(chan []byte, outboundQueueSize),
	}
	h.attach(s)
	defer h.detach(s)

	ctx := r.Context()
	go s.drainReads(ctx)
	s.writeLoop(ctx)
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	slog.Info("ws session opened", "sessions", n)
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		s.conn.Close(websocket.StatusNormalClosure, "")
		slog.Info("ws session closed", "sessions", n)
	}
}

// drainReads consumes and discards incoming frames so close frames and
// pings are processed by the transport.
func (s *session) drainReads(ctx context.Context) {
	for {
		if _, _, err := s.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *session) writeLoop(ctx context.Context) {
	for {
		select {
		case data := <-s.outbound:
			if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close detaches from the bus and terminates every session.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.sessions, s)
	}
}
