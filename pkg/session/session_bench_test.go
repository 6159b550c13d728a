package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/peerwire/peerwire-go/pkg/transport"
)

func startBenchSessions(b *testing.B) (*Session, *Session) {
	b.Helper()
	ta, tb := transport.Pipe(64)
	a := New(ta)
	s := New(tb)

	_ = s.OnRequest("echo", func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error) {
		return json.RawMessage(params), nil
	})

	if err := a.Start(); err != nil {
		b.Fatalf("start: %v", err)
	}
	if err := s.Start(); err != nil {
		b.Fatalf("start: %v", err)
	}
	if _, err := a.Initialize(context.Background()); err != nil {
		b.Fatalf("initialize: %v", err)
	}
	for s.State() != Ready {
		time.Sleep(time.Millisecond)
	}

	b.Cleanup(func() {
		_ = a.Close(nil)
		_ = s.Close(nil)
	})
	return a, s
}

func BenchmarkRequestRoundTrip(b *testing.B) {
	a, _ := startBenchSessions(b)

	payload := map[string]string{"key": "value"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.SendRequest(context.Background(), "echo", payload, time.Minute); err != nil {
			b.Fatalf("request: %v", err)
		}
	}
}

func BenchmarkConcurrentRequests(b *testing.B) {
	a, _ := startBenchSessions(b)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := a.SendRequest(context.Background(), "echo", 1, time.Minute); err != nil {
				b.Errorf("request: %v", err)
				return
			}
		}
	})
}
