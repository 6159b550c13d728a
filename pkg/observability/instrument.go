package observability

import (
	"context"
	"sync"

	"github.com/peerwire/peerwire-go/pkg/transport"
)

// instrumentedTransport decorates a Transport with frame and error
// counters. The inbound side re-pumps the receive channel so counting
// stays transparent to the session.
type instrumentedTransport struct {
	inner   transport.Transport
	metrics *Metrics

	once sync.Once
	recv chan []byte
}

// InstrumentTransport wraps a transport so every frame and failure is
// counted. A nil metrics sink returns the transport unchanged.
func InstrumentTransport(t transport.Transport, m *Metrics) transport.Transport {
	if m == nil {
		return t
	}
	return &instrumentedTransport{inner: t, metrics: m}
}

func (it *instrumentedTransport) Send(ctx context.Context, data []byte) error {
	if err := it.inner.Send(ctx, data); err != nil {
		it.metrics.TransportError("send")
		return err
	}
	it.metrics.FrameSent()
	return nil
}

func (it *instrumentedTransport) Receive() <-chan []byte {
	it.once.Do(func() {
		it.recv = make(chan []byte)
		go func() {
			defer close(it.recv)
			for msg := range it.inner.Receive() {
				it.metrics.FrameReceived()
				it.recv <- msg
			}
		}()
	})
	return it.recv
}

func (it *instrumentedTransport) Close() error {
	if err := it.inner.Close(); err != nil {
		it.metrics.TransportError("close")
		return err
	}
	return nil
}
