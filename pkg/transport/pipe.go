package transport

import (
	"context"
	"sync"
)

// pipeEnd is one side of an in-process transport pair. Messages cross
// directly over channels with no serialization overhead.
type pipeEnd struct {
	out       chan<- []byte
	recv      chan []byte
	done      chan struct{}
	peerDone  <-chan struct{}
	closeOnce sync.Once
}

// Pipe creates a connected pair of in-process transports. Whatever one end
// sends, the other receives. Closing either end terminates both receive
// streams. The pair is the primary harness for session tests and is also
// useful for wiring two peers inside one process.
func Pipe(buffer int) (Transport, Transport) {
	if buffer <= 0 {
		buffer = 16
	}
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &pipeEnd{out: ab, recv: make(chan []byte), done: aDone, peerDone: bDone}
	b := &pipeEnd{out: ba, recv: make(chan []byte), done: bDone, peerDone: aDone}
	go a.pump(ba)
	go b.pump(ab)
	return a, b
}

// pump forwards inbound messages to the receive stream until either end
// closes, draining anything the peer sent before it went away.
func (p *pipeEnd) pump(in <-chan []byte) {
	defer close(p.recv)
	for {
		select {
		case <-p.done:
			return
		case <-p.peerDone:
			for {
				select {
				case msg := <-in:
					select {
					case p.recv <- msg:
					case <-p.done:
						return
					}
				default:
					return
				}
			}
		case msg := <-in:
			select {
			case p.recv <- msg:
			case <-p.done:
				return
			}
		}
	}
}

// Send delivers one message to the peer end.
func (p *pipeEnd) Send(ctx context.Context, data []byte) error {
	// Copy so the caller may reuse its buffer.
	msg := make([]byte, len(data))
	copy(msg, data)

	select {
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- msg:
		return nil
	}
}

// Receive returns the inbound stream; it closes once either end closes.
func (p *pipeEnd) Receive() <-chan []byte {
	return p.recv
}

// Close shuts down this end. Safe to call multiple times.
func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
