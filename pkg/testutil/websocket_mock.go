package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MockWebSocketServer is an httptest server that upgrades every request to a
// websocket and lets tests push raw frames to, or drop, connected clients.
type MockWebSocketServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	connMutex   sync.Mutex
	connections map[int]*MockConnection
	nextID      int
	accepted    atomic.Int32

	// Reject makes the server answer 503 instead of upgrading.
	Reject atomic.Bool

	// OnConnect is called after each upgrade, before any frame is sent.
	OnConnect func(conn *MockConnection)
}

// MockConnection is one server-side websocket session.
type MockConnection struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewMockWebSocketServer starts a mock server.
func NewMockWebSocketServer() *MockWebSocketServer {
	mock := &MockWebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connections: make(map[int]*MockConnection),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleWebSocket))
	return mock
}

// URL returns the http base URL of the server.
func (m *MockWebSocketServer) URL() string {
	return m.server.URL
}

// WebSocketURL returns the ws URL for path.
func (m *MockWebSocketServer) WebSocketURL(path string) string {
	return strings.Replace(m.server.URL, "http://", "ws://", 1) + path
}

// Close drops every connection and shuts the server down.
func (m *MockWebSocketServer) Close() {
	m.DropAll()
	m.server.Close()
}

// Accepted returns how many upgrades the server has completed.
func (m *MockWebSocketServer) Accepted() int {
	return int(m.accepted.Load())
}

// Active returns the number of currently open connections.
func (m *MockWebSocketServer) Active() int {
	m.connMutex.Lock()
	defer m.connMutex.Unlock()
	return len(m.connections)
}

// WaitForAccepted blocks until at least n upgrades happened or timeout
// passes.
func (m *MockWebSocketServer) WaitForAccepted(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Accepted() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.Accepted() >= n
}

// Broadcast sends a raw text frame to every open connection.
func (m *MockWebSocketServer) Broadcast(payload []byte) {
	m.connMutex.Lock()
	defer m.connMutex.Unlock()
	for _, c := range m.connections {
		c.Send(payload)
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (m *MockWebSocketServer) BroadcastJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Broadcast(payload)
	return nil
}

// DropAll closes every connection without a close handshake, as a network
// failure would.
func (m *MockWebSocketServer) DropAll() {
	m.connMutex.Lock()
	conns := make([]*MockConnection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.connMutex.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (m *MockWebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.Reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	mc := &MockConnection{
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}

	m.connMutex.Lock()
	m.nextID++
	id := m.nextID
	m.connections[id] = mc
	m.connMutex.Unlock()
	m.accepted.Add(1)

	if m.OnConnect != nil {
		m.OnConnect(mc)
	}

	go mc.writePump()
	go func() {
		mc.readPump()
		m.connMutex.Lock()
		delete(m.connections, id)
		m.connMutex.Unlock()
	}()
}

// Send queues a raw text frame; frames to a closed connection are dropped.
func (c *MockConnection) Send(payload []byte) {
	select {
	case <-c.closed:
	case c.send <- payload:
	default:
		// buffer full, drop
	}
}

// Close tears the connection down.
func (c *MockConnection) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// readPump drains client frames so control frames (ping, close) are
// processed, and returns when the connection dies.
func (c *MockConnection) readPump() {
	defer c.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *MockConnection) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test utility
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		}
	}
}
