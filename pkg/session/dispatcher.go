package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/logging"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

// RequestHandler serves one inbound request. The returned value is
// marshaled as the result; a nil value becomes a null result. A returned
// error becomes an error response; everything else about the wire exchange
// is the session's job.
type RequestHandler func(ctx context.Context, pc *PeerContext, params json.RawMessage) (interface{}, error)

// NotificationHandler consumes one inbound notification. There is no reply
// channel; errors are logged and dropped.
type NotificationHandler func(ctx context.Context, pc *PeerContext, params json.RawMessage) error

type requestEntry struct {
	handler  RequestHandler
	requires string
}

type notificationEntry struct {
	handler NotificationHandler
	pattern glob.Glob // nil for exact-match entries
}

// dispatcher routes inbound messages to registered handlers. Requests run
// concurrently, each in its own goroutine with panic isolation.
// Notifications for the same method are delivered in arrival order.
type dispatcher struct {
	mu        sync.RWMutex
	requests  map[string]*requestEntry
	notifs    map[string]*notificationEntry
	wildcards []*notificationEntry

	queues   map[string]*notifyQueue
	queuesMu sync.Mutex

	logger logging.Logger
	tracer trace.Tracer
}

func newDispatcher(logger logging.Logger) *dispatcher {
	return &dispatcher{
		requests: make(map[string]*requestEntry),
		notifs:   make(map[string]*notificationEntry),
		queues:   make(map[string]*notifyQueue),
		logger:   logger,
		tracer:   otel.Tracer("github.com/peerwire/peerwire-go/pkg/session"),
	}
}

// registerRequest installs a request handler. The capability key, when
// non-empty, gates the method on the negotiated set.
func (d *dispatcher) registerRequest(method string, h RequestHandler, requires string) error {
	if method == "" {
		return fmt.Errorf("method name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q must not be nil", method)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.requests[method]; exists {
		return fmt.Errorf("handler for %q already registered", method)
	}
	d.requests[method] = &requestEntry{handler: h, requires: requires}
	return nil
}

// registerNotification installs an exact-match notification handler.
func (d *dispatcher) registerNotification(method string, h NotificationHandler) error {
	if method == "" {
		return fmt.Errorf("method name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q must not be nil", method)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.notifs[method]; exists {
		return fmt.Errorf("notification handler for %q already registered", method)
	}
	d.notifs[method] = &notificationEntry{handler: h}
	return nil
}

// registerNotificationPattern installs a wildcard handler, e.g.
// "notifications/*". Exact-match handlers take precedence; among patterns,
// registration order wins.
func (d *dispatcher) registerNotificationPattern(pattern string, h NotificationHandler) error {
	if h == nil {
		return fmt.Errorf("handler for pattern %q must not be nil", pattern)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid notification pattern %q: %w", pattern, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wildcards = append(d.wildcards, &notificationEntry{handler: h, pattern: g})
	return nil
}

// dispatchRequest runs the handler for one inbound request and returns the
// response to send. It never panics; handler panics are converted to
// internal error responses. The caller runs this in its own goroutine.
func (d *dispatcher) dispatchRequest(ctx context.Context, pc *PeerContext, req *protocol.Request) *protocol.Response {
	d.mu.RLock()
	entry, ok := d.requests[req.Method]
	d.mu.RUnlock()

	if !ok {
		return engineerrors.ToErrorResponse(req.ID, engineerrors.MethodNotFoundError(req.Method))
	}

	if entry.requires != "" {
		if !capabilityAllowed(pc.Capabilities(), entry.requires) {
			err := engineerrors.CapabilityViolation(req.Method, entry.requires)
			d.logger.Warn("rejected request outside negotiated capabilities",
				logging.String("method", req.Method),
				logging.String("capability", entry.requires))
			return engineerrors.ToErrorResponse(req.ID, err)
		}
	}

	ctx, span := d.tracer.Start(ctx, "rpc."+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
			attribute.String("peer.id", pc.PeerID),
		))
	defer span.End()

	result, err := d.invoke(ctx, pc, entry.handler, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.WithError(err).Warn("request handler failed",
			logging.String("method", req.Method),
			logging.String("id", req.ID.String()))
		return engineerrors.ToErrorResponse(req.ID, err)
	}
	span.SetStatus(codes.Ok, "")

	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		d.logger.WithError(err).Error("failed to marshal handler result",
			logging.String("method", req.Method))
		return engineerrors.ToErrorResponse(req.ID, engineerrors.HandlerFailure(req.Method, err))
	}
	return resp
}

// invoke runs a handler with panic isolation.
func (d *dispatcher) invoke(ctx context.Context, pc *PeerContext, h RequestHandler, req *protocol.Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request handler panicked",
				logging.String("method", req.Method),
				logging.Any("panic", r))
			result = nil
			err = engineerrors.HandlerPanic(req.Method, r)
		}
	}()
	return h(ctx, pc, req.Params)
}

// dispatchNotification queues one inbound notification for ordered,
// per-method delivery. Unhandled notifications are dropped silently, as
// the wire contract requires.
func (d *dispatcher) dispatchNotification(ctx context.Context, pc *PeerContext, note *protocol.Notification) {
	d.mu.RLock()
	entry, ok := d.notifs[note.Method]
	if !ok {
		for _, w := range d.wildcards {
			if w.pattern.Match(note.Method) {
				entry = w
				ok = true
				break
			}
		}
	}
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("dropping unhandled notification",
			logging.String("method", note.Method))
		return
	}

	d.queueFor(note.Method).enqueue(d, ctx, pc, entry.handler, note)
}

func (d *dispatcher) queueFor(method string) *notifyQueue {
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()
	q, ok := d.queues[method]
	if !ok {
		q = &notifyQueue{}
		d.queues[method] = q
	}
	return q
}

type queuedNotification struct {
	ctx     context.Context
	pc      *PeerContext
	handler NotificationHandler
	note    *protocol.Notification
}

// notifyQueue serializes notification delivery for one method. The first
// enqueue on an idle queue starts a drainer goroutine; it exits once the
// backlog is empty. Order within a method is preserved; distinct methods
// drain concurrently.
type notifyQueue struct {
	mu       sync.Mutex
	backlog  []queuedNotification
	draining bool
}

func (q *notifyQueue) enqueue(d *dispatcher, ctx context.Context, pc *PeerContext, h NotificationHandler, note *protocol.Notification) {
	q.mu.Lock()
	q.backlog = append(q.backlog, queuedNotification{ctx: ctx, pc: pc, handler: h, note: note})
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	go q.drain(d)
}

func (q *notifyQueue) drain(d *dispatcher) {
	for {
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		item := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.mu.Unlock()

		q.deliver(d, item)
	}
}

func (q *notifyQueue) deliver(d *dispatcher, item queuedNotification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification handler panicked",
				logging.String("method", item.note.Method),
				logging.Any("panic", r))
		}
	}()
	if err := item.handler(item.ctx, item.pc, item.note.Params); err != nil {
		d.logger.WithError(err).Warn("notification handler failed",
			logging.String("method", item.note.Method))
	}
}
