package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single event write may block.
	writeWait = 10 * time.Second
	// readWait is the idle limit for the attempt stream; the engine's 1 Hz
	// ticks flow the other way, so a tab only writes on user activity.
	readWait = 5 * time.Minute
)

// Conn wraps a websocket connection with a write mutex. gorilla/websocket
// allows at most one concurrent writer, and the attempt stream writes from
// two places: the engine event pump and the read-loop acknowledgements.
// Reads stay unguarded; there is a single reader per connection.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Wrap creates a Conn around an upgraded connection.
func Wrap(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON reads and decodes the next client message, refreshing the idle
// deadline.
func (c *Conn) ReadJSON(v interface{}) error {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	return c.ws.ReadJSON(v)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
