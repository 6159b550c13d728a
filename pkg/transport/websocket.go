package transport

import (
	"context"
	"sync"

	"nhooyr.io/websocket"
)

// WebSocket adapts an established WebSocket connection to the Transport
// contract. Messages travel as text frames containing JSON; frame boundaries
// give the one-delivery-one-message property for free.
type WebSocket struct {
	conn *websocket.Conn
	ctx  context.Context

	recvChan  chan []byte
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocket wraps an existing connection. The ctx parameter scopes all
// reads and writes on the connection; cancelling it tears the transport
// down.
func NewWebSocket(ctx context.Context, conn *websocket.Conn) *WebSocket {
	t := &WebSocket{
		conn:     conn,
		ctx:      ctx,
		recvChan: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *WebSocket) readLoop() {
	defer close(t.recvChan)

	for {
		_, data, err := t.conn.Read(t.ctx)
		if err != nil {
			// Normal closure and going-away both mean a clean disconnect;
			// anything else still ends the stream, the session treats EOF
			// as peer loss either way.
			return
		}

		select {
		case t.recvChan <- data:
		case <-t.done:
			return
		}
	}
}

// Send writes one message as a text frame.
func (t *WebSocket) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Receive returns the inbound stream; it closes when the connection ends.
func (t *WebSocket) Receive() <-chan []byte {
	return t.recvChan
}

// Close sends a close frame and shuts down. Safe to call multiple times.
func (t *WebSocket) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}
