package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"detectview/internal/dto"
	"detectview/internal/logger"
	"detectview/internal/pipeline"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	PongWait  = 60 * time.Second
	pingEvery = (PongWait * 9) / 10

	// pendingLimit bounds the frames queued while the hub is busy writing.
	pendingLimit = 32
)

// FrameMessage is the envelope every viewer receives.
type FrameMessage struct {
	Type  string        `json:"type"`
	Frame dto.FrameData `json:"frame"`
}

type queuedFrame struct {
	message []byte
	final   bool
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// HubService fans frames out to every connected viewer. While viewers fall behind,
// an in-progress frame is replaced by the next one but a run's final frame is kept.
type HubService struct {
	clients    map[*websocket.Conn]*client
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	notify     chan struct{}
	stopped    chan struct{}
	mutex      sync.RWMutex
	pending    []queuedFrame
	pendingMu  sync.Mutex
	snapshotFn func() []byte
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]*client),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		notify:     make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Attach broadcasts every frame store publishes and greets new viewers with its snapshot.
func (h *HubService) Attach(store *pipeline.Store) (cancel func()) {
	h.mutex.Lock()
	h.snapshotFn = func() []byte {
		message, err := EncodeFrame(store.Snapshot())
		if err != nil {
			h.logger.Error("Error encoding snapshot: %v", err)
			return nil
		}
		return message
	}
	h.mutex.Unlock()

	return store.Subscribe(func(f pipeline.Frame) {
		message, err := EncodeFrame(f)
		if err != nil {
			h.logger.Error("Error encoding frame: %v", err)
			return
		}
		h.Broadcast(message, !f.Loading)
	})
}

// EncodeFrame wraps f in a FrameMessage.
func EncodeFrame(f pipeline.Frame) ([]byte, error) {
	return json.Marshal(FrameMessage{Type: "frame", Frame: dto.NewFrameData(f)})
}

// Run serves registrations and broadcasts until ctx ends, then disconnects every viewer.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn, c := range h.clients {
				close(c.done)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.register:
			c := &client{conn: conn, done: make(chan struct{})}
			h.mutex.Lock()
			h.clients[conn] = c
			snapshotFn := h.snapshotFn
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", total)

			go h.ping(c)
			if snapshotFn != nil {
				if message := snapshotFn(); message != nil {
					h.send(c, message)
				}
			}

		case conn := <-h.unregister:
			h.remove(conn)

		case <-h.notify:
			h.pendingMu.Lock()
			queued := h.pending
			h.pending = nil
			h.pendingMu.Unlock()
			if len(queued) == 0 {
				continue
			}

			h.mutex.RLock()
			targets := make([]*client, 0, len(h.clients))
			for _, c := range h.clients {
				targets = append(targets, c)
			}
			h.mutex.RUnlock()

			for _, q := range queued {
				alive := targets[:0]
				for _, c := range targets {
					if h.send(c, q.message) {
						alive = append(alive, c)
					}
				}
				targets = alive
			}
		}
	}
}

// send writes message to c and drops c when the write fails.
func (h *HubService) send(c *client, message []byte) bool {
	if err := writeMessage(c, websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		h.remove(c.conn)
		return false
	}
	return true
}

func (h *HubService) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.done)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if ok {
		conn.Close()
		h.logger.Info("Client disconnected. Total: %d", total)
	}
}

func (h *HubService) ping(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := writeMessage(c, websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func writeMessage(c *client, messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// Register adds a viewer. It is a no-op once Run has returned.
func (h *HubService) Register(conn *websocket.Conn) {
	select {
	case h.register <- conn:
	case <-h.stopped:
		conn.Close()
	}
}

func (h *HubService) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
	}
}

// SendSnapshot writes the current frame to one viewer on request.
func (h *HubService) SendSnapshot(conn *websocket.Conn) {
	h.mutex.RLock()
	c, ok := h.clients[conn]
	snapshotFn := h.snapshotFn
	h.mutex.RUnlock()

	if !ok || snapshotFn == nil {
		return
	}
	if message := snapshotFn(); message != nil {
		h.send(c, message)
	}
}

// Broadcast queues message for every viewer without blocking. A queued frame that
// is not final is replaced by the next one; final frames are delivered in order.
func (h *HubService) Broadcast(message []byte, final bool) {
	h.pendingMu.Lock()
	if n := len(h.pending); n > 0 && !h.pending[n-1].final {
		h.pending = h.pending[:n-1]
	}
	if len(h.pending) >= pendingLimit {
		h.logger.Warning("Viewers are %d frames behind, dropping the oldest", len(h.pending))
		h.pending = h.pending[1:]
	}
	h.pending = append(h.pending, queuedFrame{message: message, final: final})
	h.pendingMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
