package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// SSEClient is the client side of an HTTP+SSE connection: inbound messages
// arrive on a server-sent event stream, outbound messages go out as HTTP
// POSTs to the endpoint the server announces in its first event.
type SSEClient struct {
	httpClient *http.Client
	connectURL string

	messageURL string
	urlMu      sync.RWMutex

	maxEventSize int

	recvChan  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// SSEOption configures an SSEClient.
type SSEOption func(*SSEClient)

// WithSSEMaxEventSize bounds the size of a single inbound event.
func WithSSEMaxEventSize(size int) SSEOption {
	return func(c *SSEClient) {
		c.maxEventSize = size
	}
}

// WithSSEHTTPClient replaces the default HTTP client.
func WithSSEHTTPClient(client *http.Client) SSEOption {
	return func(c *SSEClient) {
		c.httpClient = client
	}
}

// DialSSE connects to an SSE endpoint and blocks until the server announces
// the message endpoint, so the returned transport is immediately usable for
// sends.
func DialSSE(ctx context.Context, connectURL string, opts ...SSEOption) (*SSEClient, error) {
	c := &SSEClient{
		httpClient: http.DefaultClient,
		connectURL: connectURL,
		recvChan:   make(chan []byte, 16),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, connectURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create connect request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	ready := make(chan error, 1)
	go c.readEvents(resp.Body, ready)

	select {
	case err := <-ready:
		if err != nil {
			c.Close()
			return nil, err
		}
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	return c, nil
}

// readEvents consumes the event stream. The first "endpoint" event carries
// the POST URL; subsequent "message" events carry protocol payloads.
func (c *SSEClient) readEvents(body io.ReadCloser, ready chan<- error) {
	defer func() {
		body.Close()
		close(c.recvChan)
	}()

	var config *sse.ReadConfig
	if c.maxEventSize > 0 {
		config = &sse.ReadConfig{MaxEventSize: c.maxEventSize}
	}

	announced := false
	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if !announced {
				ready <- fmt.Errorf("stream ended before endpoint announcement: %w", err)
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			u, err := url.Parse(ev.Data)
			if err != nil || u.String() == "" {
				ready <- errors.New("server announced an invalid message endpoint")
				return
			}
			c.urlMu.Lock()
			c.messageURL = u.String()
			c.urlMu.Unlock()
			if !announced {
				announced = true
				ready <- nil
			}

		case "message":
			if !announced {
				// Payloads before the endpoint announcement violate the
				// stream contract; drop them.
				continue
			}
			select {
			case c.recvChan <- []byte(ev.Data):
			case <-c.done:
				return
			}
		}
	}
}

// Send POSTs one message to the announced endpoint.
func (c *SSEClient) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.urlMu.RLock()
	messageURL := c.messageURL
	c.urlMu.RUnlock()
	if messageURL == "" {
		return errors.New("no message endpoint announced")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Receive returns the inbound stream; it closes when the event stream ends.
func (c *SSEClient) Receive() <-chan []byte {
	return c.recvChan
}

// Close cancels the event stream. Safe to call multiple times.
func (c *SSEClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	return nil
}
