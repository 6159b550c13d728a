package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds a single newline-delimited message (10 MiB).
const maxLineSize = 10 * 1024 * 1024

// Stdio carries one JSON message per line over a reader/writer pair,
// typically the standard streams of a child process. This is the
// conventional transport for command-line tools connected via pipes.
type Stdio struct {
	reader io.Reader
	writer *bufio.Writer

	recvChan chan []byte
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	group     *errgroup.Group
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdioStreams replaces the process streams with custom ones, primarily
// for tests.
func WithStdioStreams(r io.Reader, w io.Writer) StdioOption {
	return func(t *Stdio) {
		t.reader = r
		t.writer = bufio.NewWriter(w)
	}
}

// NewStdio creates a stdio transport reading from stdin and writing to
// stdout, and starts its read loop.
func NewStdio(opts ...StdioOption) *Stdio {
	t := &Stdio{
		reader:   os.Stdin,
		writer:   bufio.NewWriter(os.Stdout),
		recvChan: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.group = &errgroup.Group{}
	t.group.Go(t.readLoop)
	return t
}

// readLoop scans lines until EOF, a read error, or Close.
func (t *Stdio) readLoop() error {
	defer close(t.recvChan)

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Copy, the scanner reuses its buffer on the next Scan.
		data := make([]byte, len(line))
		copy(data, line)

		select {
		case t.recvChan <- data:
		case <-t.done:
			return nil
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Send writes one message followed by a newline and flushes.
func (t *Stdio) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

// Receive returns the inbound stream; it closes on EOF or Close.
func (t *Stdio) Receive() <-chan []byte {
	return t.recvChan
}

// Close stops the read loop and flushes pending output. Safe to call
// multiple times.
func (t *Stdio) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		// Unblock the scanner when the underlying reader supports it.
		if closer, ok := t.reader.(io.Closer); ok {
			_ = closer.Close()
		}

		t.writeMu.Lock()
		err = t.writer.Flush()
		t.writeMu.Unlock()
	})
	return err
}

// Wait blocks until the read loop exits and reports its error, if any.
func (t *Stdio) Wait() error {
	return t.group.Wait()
}
