package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/logging"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

func testPeer(caps protocol.Capabilities) *PeerContext {
	pc := &PeerContext{PeerID: "test-peer"}
	pc.setNegotiated(protocol.PeerInfo{Name: "peer"}, caps, protocol.LatestVersion)
	return pc
}

func TestDispatcherRegistrationValidation(t *testing.T) {
	d := newDispatcher(logging.Nop())

	h := func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error) {
		return nil, nil
	}

	if err := d.registerRequest("", h, ""); err == nil {
		t.Fatal("empty method accepted")
	}
	if err := d.registerRequest("m", nil, ""); err == nil {
		t.Fatal("nil handler accepted")
	}
	if err := d.registerRequest("m", h, ""); err != nil {
		t.Fatalf("valid registration rejected: %v", err)
	}
	if err := d.registerRequest("m", h, ""); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	if err := d.registerNotificationPattern("[", func(ctx context.Context, pc *PeerContext, params json.RawMessage) error {
		return nil
	}); err == nil {
		t.Fatal("invalid glob accepted")
	}
}

func TestDispatcherMethodNotFound(t *testing.T) {
	d := newDispatcher(logging.Nop())

	req, _ := protocol.NewRequest(protocol.Int64ID(1), "no/such/method", nil)
	resp := d.dispatchRequest(context.Background(), testPeer(nil), req)

	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != protocol.MethodNotFound {
		t.Fatalf("expected method-not-found, got %d", resp.Error.Code)
	}
}

func TestDispatcherHandlerResult(t *testing.T) {
	d := newDispatcher(logging.Nop())

	err := d.registerRequest("echo", func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error) {
		return map[string]string{"echo": string(params)}, nil
	}, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	req, _ := protocol.NewRequest(protocol.Int64ID(1), "echo", "hi")
	resp := d.dispatchRequest(context.Background(), testPeer(nil), req)

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	var result map[string]string
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["echo"] != `"hi"` {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestDispatcherPanicIsolation(t *testing.T) {
	d := newDispatcher(logging.Nop())

	_ = d.registerRequest("boom", func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error) {
		panic("handler exploded")
	}, "")

	req, _ := protocol.NewRequest(protocol.Int64ID(1), "boom", nil)
	resp := d.dispatchRequest(context.Background(), testPeer(nil), req)

	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != protocol.InternalError {
		t.Fatalf("expected internal error, got %d", resp.Error.Code)
	}
}

func TestDispatcherCapabilityGate(t *testing.T) {
	d := newDispatcher(logging.Nop())

	_ = d.registerRequest("resources/list", func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error) {
		return []string{}, nil
	}, "resources")

	req, _ := protocol.NewRequest(protocol.Int64ID(1), "resources/list", nil)

	// Peer without the capability is rejected before the handler runs.
	resp := d.dispatchRequest(context.Background(), testPeer(protocol.Capabilities{
		"tools": {Enabled: true},
	}), req)
	if resp.Error == nil || resp.Error.Code != protocol.ErrorCode(engineerrors.CodeCapabilityViolation) {
		t.Fatalf("expected capability violation, got %+v", resp.Error)
	}

	// Peer with the capability goes through.
	resp = d.dispatchRequest(context.Background(), testPeer(protocol.Capabilities{
		"resources": {Enabled: true},
	}), req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}

func TestDispatcherNotificationOrdering(t *testing.T) {
	d := newDispatcher(logging.Nop())

	const n = 50
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	_ = d.registerNotification("counter", func(ctx context.Context, pc *PeerContext, params json.RawMessage) error {
		var v int
		_ = json.Unmarshal(params, &v)
		mu.Lock()
		got = append(got, v)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	pc := testPeer(nil)
	for i := 0; i < n; i++ {
		note, _ := protocol.NewNotification("counter", i)
		d.dispatchNotification(context.Background(), pc, note)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notifications")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("notification %d delivered out of order: got %d", i, v)
		}
	}
}

func TestDispatcherWildcardNotification(t *testing.T) {
	d := newDispatcher(logging.Nop())

	exact := make(chan string, 1)
	wild := make(chan string, 1)

	_ = d.registerNotification("notifications/progress", func(ctx context.Context, pc *PeerContext, params json.RawMessage) error {
		exact <- "exact"
		return nil
	})
	_ = d.registerNotificationPattern("notifications/*", func(ctx context.Context, pc *PeerContext, params json.RawMessage) error {
		wild <- "wild"
		return nil
	})

	pc := testPeer(nil)

	// Exact match wins over the pattern.
	note, _ := protocol.NewNotification("notifications/progress", nil)
	d.dispatchNotification(context.Background(), pc, note)
	select {
	case <-exact:
	case <-time.After(time.Second):
		t.Fatal("exact handler not invoked")
	}

	// Unmatched methods fall through to the pattern.
	note, _ = protocol.NewNotification("notifications/resources/updated", nil)
	d.dispatchNotification(context.Background(), pc, note)
	select {
	case <-wild:
	case <-time.After(time.Second):
		t.Fatal("wildcard handler not invoked")
	}
}
