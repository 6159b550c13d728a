package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioReceivesLines(t *testing.T) {
	in := strings.NewReader("{\"a\":1}\n\n{\"b\":2}\n")
	var out bytes.Buffer

	tr := NewStdio(WithStdioStreams(in, &out))
	defer tr.Close()

	var got []string
	for msg := range tr.Receive() {
		got = append(got, string(msg))
	}

	// Blank lines are skipped.
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
	require.NoError(t, tr.Wait())
}

func TestStdioSendAppendsNewline(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer

	tr := NewStdio(WithStdioStreams(in, &out))
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.Send(ctx, []byte(`{"id":1}`)))
	require.NoError(t, tr.Send(ctx, []byte(`{"id":2}`)))

	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", out.String())
}

func TestStdioSendAfterCloseFails(t *testing.T) {
	tr := NewStdio(WithStdioStreams(strings.NewReader(""), io.Discard))
	require.NoError(t, tr.Close())

	err := tr.Send(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStdioCloseUnblocksReader(t *testing.T) {
	pr, pw := io.Pipe()
	tr := NewStdio(WithStdioStreams(pr, io.Discard))

	done := make(chan struct{})
	go func() {
		for range tr.Receive() {
		}
		close(done)
	}()

	_, err := pw.Write([]byte("{\"x\":1}\n"))
	require.NoError(t, err)

	require.NoError(t, tr.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receive stream did not close")
	}
	pw.Close()
}
