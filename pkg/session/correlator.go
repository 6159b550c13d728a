package session

import (
	"encoding/json"
	"sync"
	"time"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/logging"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

// Outcome is the terminal result of an outbound request: a raw result
// payload or an error, never both.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// pendingRequest is one outstanding outbound request awaiting its response.
// The channel has capacity 1 so the resolver never blocks; whichever of
// response, timeout, or cancellation arrives first fills the slot.
type pendingRequest struct {
	id       protocol.RequestID
	method   string
	issuedAt time.Time
	deadline time.Time
	done     chan Outcome
}

// correlator owns the pending-request table. IDs are monotonic int64s and
// are never reused while an earlier request with that ID is outstanding.
// Every pending request completes exactly once.
type correlator struct {
	mu      sync.Mutex
	nextID  int64
	pending map[protocol.RequestID]*pendingRequest
	logger  logging.Logger
}

func newCorrelator(logger logging.Logger) *correlator {
	return &correlator{
		pending: make(map[protocol.RequestID]*pendingRequest),
		logger:  logger,
	}
}

// Register allocates a fresh request ID and a completion slot. A zero
// timeout means no deadline; the request then completes only via response
// or cancellation.
func (c *correlator) Register(method string, timeout time.Duration) (protocol.RequestID, <-chan Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := protocol.Int64ID(c.nextID)

	now := time.Now()
	p := &pendingRequest{
		id:       id,
		method:   method,
		issuedAt: now,
		done:     make(chan Outcome, 1),
	}
	if timeout > 0 {
		p.deadline = now.Add(timeout)
	}
	c.pending[id] = p
	return id, p.done
}

// Resolve completes a pending request with the given outcome. An ID with no
// pending entry yields a correlation error: one this correlator issued but
// has since completed (timeout, cancellation, or a duplicate response), or
// one the peer fabricated.
func (c *correlator) Resolve(id protocol.RequestID, outcome Outcome) error {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	issued := c.issued(id)
	c.mu.Unlock()

	if !ok {
		if issued {
			return engineerrors.AlreadyResolved(id.String())
		}
		return engineerrors.UnknownRequestID(id.String())
	}
	p.done <- outcome
	return nil
}

// issued reports whether this correlator ever allocated the given id.
// Callers must hold c.mu.
func (c *correlator) issued(id protocol.RequestID) bool {
	n, ok := id.Int64()
	return ok && n > 0 && n <= c.nextID
}

// Cancel completes one pending request with a cancellation error and
// reports its method name so the caller can notify the peer.
func (c *correlator) Cancel(id protocol.RequestID, reason string) (string, error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	issued := c.issued(id)
	c.mu.Unlock()

	if !ok {
		if issued {
			return "", engineerrors.AlreadyResolved(id.String())
		}
		return "", engineerrors.UnknownRequestID(id.String())
	}
	p.done <- Outcome{Err: engineerrors.RequestCancelled(p.method, reason)}
	return p.method, nil
}

// Expire completes every pending request whose deadline has passed and
// returns how many were timed out.
func (c *correlator) Expire(now time.Time) int {
	c.mu.Lock()
	var expired []*pendingRequest
	for id, p := range c.pending {
		if !p.deadline.IsZero() && now.After(p.deadline) {
			expired = append(expired, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		timeout := p.deadline.Sub(p.issuedAt)
		p.done <- Outcome{Err: engineerrors.RequestTimeout(p.method, timeout)}
		c.logger.Warn("request timed out",
			logging.String("method", p.method),
			logging.String("id", p.id.String()),
			logging.Duration("timeout", timeout))
	}
	return len(expired)
}

// CancelAll completes every pending request with the given error. Used on
// session close so no caller is left blocked.
func (c *correlator) CancelAll(reason error) int {
	c.mu.Lock()
	dropped := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		dropped = append(dropped, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range dropped {
		p.done <- Outcome{Err: reason}
	}
	return len(dropped)
}

// Len reports how many requests are outstanding.
func (c *correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
