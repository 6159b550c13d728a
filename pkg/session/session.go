package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/logging"
	"github.com/peerwire/peerwire-go/pkg/observability"
	"github.com/peerwire/peerwire-go/pkg/protocol"
	"github.com/peerwire/peerwire-go/pkg/transport"
)

const (
	// DefaultRequestTimeout applies when SendRequest is given no timeout.
	DefaultRequestTimeout = 30 * time.Second

	// defaultExpiryInterval is how often the pending table is swept for
	// deadline-passed requests.
	defaultExpiryInterval = 500 * time.Millisecond
)

// Session is one end of a bidirectional JSON-RPC connection. It owns the
// handshake, the pending-request table, and message routing over a single
// transport. All methods are safe for concurrent use.
type Session struct {
	transport transport.Transport
	corr      *correlator
	disp      *dispatcher
	neg       *negotiator
	peer      *PeerContext
	logger    logging.Logger
	metrics   *observability.Metrics

	state atomic.Int32

	mu             sync.Mutex
	closeReason    error
	pendingInfo    protocol.PeerInfo
	pendingCaps    protocol.Capabilities
	pendingVersion string

	defaultTimeout time.Duration
	expiryInterval time.Duration

	group      errgroup.Group
	loopCtx    context.Context
	loopCancel context.CancelFunc
	started    bool

	closeOnce sync.Once
	closed    chan struct{}

	callbackMu      sync.Mutex
	onPeerClosed    func(error)
	onProtocolError func(error)
	unregister      func()

	inflightMu sync.Mutex
	inflight   map[protocol.RequestID]context.CancelFunc
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger replaces the no-op default logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPeerInfo sets the name and version this peer advertises during the
// handshake.
func WithPeerInfo(info protocol.PeerInfo) Option {
	return func(s *Session) { s.neg.localInfo = info }
}

// WithCapabilities sets the capability set this peer advertises.
func WithCapabilities(caps protocol.Capabilities) Option {
	return func(s *Session) { s.neg.localCaps = caps.Clone() }
}

// WithInstructions sets the free-form usage hint returned to an initiating
// peer.
func WithInstructions(instructions string) Option {
	return func(s *Session) { s.neg.instructions = instructions }
}

// WithPeerID overrides the generated peer identifier.
func WithPeerID(id string) Option {
	return func(s *Session) { s.peer.PeerID = id }
}

// WithDefaultTimeout sets the timeout applied when SendRequest gets zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Session) { s.defaultTimeout = d }
}

// WithExpiryInterval sets the pending-table sweep period. Mainly for tests.
func WithExpiryInterval(d time.Duration) Option {
	return func(s *Session) { s.expiryInterval = d }
}

// WithCapabilityRequirement gates an outbound method on a negotiated
// capability. The key is a bare name or a dotted sub-capability.
func WithCapabilityRequirement(method, capability string) Option {
	return func(s *Session) { s.neg.require(method, capability) }
}

// WithMetrics attaches a metrics sink. A nil sink disables instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New creates a session over the given transport. The session does not
// process messages until Start is called.
func New(t transport.Transport, opts ...Option) *Session {
	logger := logging.Nop()
	s := &Session{
		transport:      t,
		logger:         logger,
		neg:            newNegotiator(protocol.PeerInfo{Name: "peerwire", Version: "0.1.0"}, protocol.Capabilities{}, ""),
		peer:           &PeerContext{PeerID: uuid.NewString()},
		defaultTimeout: DefaultRequestTimeout,
		expiryInterval: defaultExpiryInterval,
		closed:         make(chan struct{}),
		inflight:       make(map[protocol.RequestID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.corr = newCorrelator(s.logger)
	s.disp = newDispatcher(s.logger)
	s.peer.state = s.State
	s.loopCtx, s.loopCancel = context.WithCancel(context.Background())
	return s
}

// HandlerOption configures a single handler registration.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	requires string
}

// RequiresCapability gates an inbound method on the negotiated set. The
// handler is never invoked for peers outside the capability; they get a
// capability violation error response instead.
func RequiresCapability(key string) HandlerOption {
	return func(c *handlerConfig) { c.requires = key }
}

// OnRequest registers a request handler for a method.
func (s *Session) OnRequest(method string, h RequestHandler, opts ...HandlerOption) error {
	var cfg handlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return s.disp.registerRequest(method, h, cfg.requires)
}

// OnNotification registers an exact-match notification handler.
func (s *Session) OnNotification(method string, h NotificationHandler) error {
	return s.disp.registerNotification(method, h)
}

// OnNotificationPattern registers a wildcard notification handler, e.g.
// "notifications/*".
func (s *Session) OnNotificationPattern(pattern string, h NotificationHandler) error {
	return s.disp.registerNotificationPattern(pattern, h)
}

// OnPeerClosed installs a callback invoked exactly once when the session
// closes, with the close reason (nil for a local graceful close).
func (s *Session) OnPeerClosed(fn func(error)) {
	s.callbackMu.Lock()
	s.onPeerClosed = fn
	s.callbackMu.Unlock()
}

// OnProtocolError installs a callback for non-fatal protocol errors:
// undecodable frames, unknown response IDs, traffic in the wrong state.
func (s *Session) OnProtocolError(fn func(error)) {
	s.callbackMu.Lock()
	s.onProtocolError = fn
	s.callbackMu.Unlock()
}

// Peer returns the peer context shared with handlers.
func (s *Session) Peer() *PeerContext {
	return s.peer
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Start begins processing inbound messages and sweeping request deadlines.
// It returns immediately; use Wait to join the loops.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session already started")
	}
	if s.State() == Closed {
		return engineerrors.SessionClosedError()
	}
	s.started = true
	s.group.Go(s.receiveLoop)
	s.group.Go(s.expiryLoop)
	s.metrics.SessionOpened()
	return nil
}

// Wait blocks until the session's background loops exit.
func (s *Session) Wait() error {
	return s.group.Wait()
}

// Initialize runs the initiating side of the handshake: send initialize,
// validate the reply, confirm with notifications/initialized, and move to
// Ready. Any failure is fatal and closes the session.
func (s *Session) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	if err := s.transition(Uninitialized, Initializing); err != nil {
		return nil, err
	}

	raw, err := s.call(ctx, protocol.MethodInitialize, s.neg.initializeParams(), s.defaultTimeout)
	if err != nil {
		return nil, s.failHandshake(err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, s.failHandshake(engineerrors.HandshakeFailed("malformed initialize result").WithDetail(err.Error()))
	}

	negotiated, err := s.neg.acceptResult(&result)
	if err != nil {
		return nil, s.failHandshake(err)
	}
	s.peer.setNegotiated(result.ServerInfo, negotiated, result.ProtocolVersion)

	if err := s.notify(ctx, protocol.NotificationInitialized, protocol.InitializedParams{}); err != nil {
		return nil, s.failHandshake(err)
	}

	if err := s.transition(Initializing, Ready); err != nil {
		return nil, err
	}
	s.logger.Info("session ready",
		logging.String("peer", result.ServerInfo.Name),
		logging.String("protocol_version", result.ProtocolVersion))
	return &result, nil
}

// failHandshake closes the session with the handshake error. Handshake
// failures are always fatal.
func (s *Session) failHandshake(err error) error {
	s.logger.WithError(err).Error("handshake failed")
	_ = s.Close(err)
	return err
}

// SendRequest issues one request and blocks until its response, timeout,
// cancellation, or session close. A zero timeout uses the session default.
// The session must be Ready; ping is exempt.
func (s *Session) SendRequest(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if err := s.checkSendable(method); err != nil {
		return nil, err
	}
	if err := s.neg.allowed(method, s.peer.Capabilities()); err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	return s.call(ctx, method, params, timeout)
}

// SendNotification emits one fire-and-forget notification. The session
// must be Ready.
func (s *Session) SendNotification(ctx context.Context, method string, params interface{}) error {
	if err := s.checkSendable(method); err != nil {
		return err
	}
	if err := s.neg.allowed(method, s.peer.Capabilities()); err != nil {
		return err
	}
	return s.notify(ctx, method, params)
}

// Ping round-trips a ping request. It works in any non-closed state.
func (s *Session) Ping(ctx context.Context) error {
	if s.State() == Closed {
		return engineerrors.SessionClosedError()
	}
	_, err := s.call(ctx, protocol.MethodPing, protocol.PingParams{}, s.defaultTimeout)
	return err
}

// CancelRequest abandons one outbound pending request and notifies the
// peer. Unknown IDs return a correlation error; the request may already
// have completed.
func (s *Session) CancelRequest(ctx context.Context, id protocol.RequestID, reason string) error {
	if _, err := s.corr.Cancel(id, reason); err != nil {
		return err
	}
	s.metrics.SetPendingRequests(s.corr.Len())
	return s.notifyCancelled(ctx, id, reason)
}

// checkSendable gates outbound traffic on session state. Ping is allowed
// anytime before close.
func (s *Session) checkSendable(method string) error {
	state := s.State()
	switch {
	case state == Ready:
		return nil
	case method == protocol.MethodPing && state != Closed:
		return nil
	case state == Closed || state == ShuttingDown:
		return engineerrors.SessionClosedError()
	default:
		return engineerrors.SessionNotReady(state.String(), method)
	}
}

// call registers a pending request, sends it, and waits for the outcome.
func (s *Session) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	id, done := s.corr.Register(method, timeout)
	s.metrics.SetPendingRequests(s.corr.Len())

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		_, _ = s.corr.Cancel(id, "marshal failure")
		<-done
		return nil, err
	}
	if err := s.sendMessage(ctx, req); err != nil {
		_, _ = s.corr.Cancel(id, "send failure")
		<-done
		s.metrics.RequestSent(method, "error")
		s.metrics.SetPendingRequests(s.corr.Len())
		return nil, err
	}
	s.logger.Debug("request sent",
		logging.String("method", method),
		logging.String("id", id.String()))

	select {
	case out := <-done:
		s.metrics.SetPendingRequests(s.corr.Len())
		s.metrics.RequestSent(method, outcomeStatus(out))
		return out.Result, out.Err
	case <-ctx.Done():
		if _, err := s.corr.Cancel(id, ctx.Err().Error()); err == nil {
			_ = s.notifyCancelled(context.Background(), id, ctx.Err().Error())
		}
		// The slot is filled either by our cancel or by a response that
		// raced it.
		out := <-done
		s.metrics.SetPendingRequests(s.corr.Len())
		s.metrics.RequestSent(method, outcomeStatus(out))
		return out.Result, out.Err
	}
}

func outcomeStatus(out Outcome) string {
	if out.Err == nil {
		return "ok"
	}
	if ee, ok := engineerrors.AsEngineError(out.Err); ok {
		return string(ee.Category())
	}
	return "error"
}

// notify encodes and sends one notification without state gating.
func (s *Session) notify(ctx context.Context, method string, params interface{}) error {
	note, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.sendMessage(ctx, note)
}

func (s *Session) notifyCancelled(ctx context.Context, id protocol.RequestID, reason string) error {
	return s.notify(ctx, protocol.NotificationCancelled, protocol.CancelledParams{
		RequestID: id,
		Reason:    reason,
	})
}

func (s *Session) sendMessage(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, data); err != nil {
		return engineerrors.TransportFailure("send", err)
	}
	return nil
}

// receiveLoop drains the transport until it closes or the session stops.
// A closed receive channel means the peer is gone.
func (s *Session) receiveLoop() error {
	for {
		select {
		case <-s.loopCtx.Done():
			return nil
		case data, ok := <-s.transport.Receive():
			if !ok {
				if s.State() != Closed {
					_ = s.Close(engineerrors.ConnectionLost())
				}
				return nil
			}
			s.handleIncoming(data)
		}
	}
}

// expiryLoop sweeps the pending table on a fixed period.
func (s *Session) expiryLoop() error {
	ticker := time.NewTicker(s.expiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.loopCtx.Done():
			return nil
		case now := <-ticker.C:
			if n := s.corr.Expire(now); n > 0 {
				s.metrics.RequestsTimedOut(n)
				s.metrics.SetPendingRequests(s.corr.Len())
			}
		}
	}
}

// handleIncoming decodes one inbound frame and routes it. Decode failures
// surface as protocol-error events; they never take the session down.
func (s *Session) handleIncoming(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.protocolError(engineerrors.CodecError(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.Response:
		s.handleResponse(m)
	case *protocol.Request:
		s.handleRequest(m)
	case *protocol.Notification:
		s.handleNotification(m)
	}
}

func (s *Session) handleResponse(resp *protocol.Response) {
	outcome := Outcome{Result: resp.Result}
	if resp.Error != nil {
		outcome = Outcome{Err: engineerrors.FromWireError(resp.Error)}
	}
	if err := s.corr.Resolve(resp.ID, outcome); err != nil {
		// Late or fabricated response. Non-fatal.
		s.protocolError(err)
		return
	}
	s.metrics.SetPendingRequests(s.corr.Len())
}

func (s *Session) handleRequest(req *protocol.Request) {
	switch req.Method {
	case protocol.MethodInitialize:
		s.handleInitialize(req)
		return
	case protocol.MethodPing:
		// Answered in any state.
		resp, _ := protocol.NewResponse(req.ID, protocol.PingResult{})
		s.respond(resp)
		return
	}

	if state := s.State(); state != Ready {
		s.protocolError(engineerrors.SessionNotReady(state.String(), req.Method))
		s.respond(engineerrors.ToErrorResponse(req.ID, engineerrors.SessionNotReady(state.String(), req.Method)))
		return
	}

	ctx, cancel := context.WithCancel(s.loopCtx)
	s.inflightMu.Lock()
	s.inflight[req.ID] = cancel
	s.inflightMu.Unlock()

	go func() {
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, req.ID)
			s.inflightMu.Unlock()
			cancel()
		}()

		start := time.Now()
		resp := s.disp.dispatchRequest(ctx, s.peer, req)
		s.metrics.RequestReceived(req.Method, responseStatus(resp))
		s.metrics.ObserveRequestDuration(req.Method, time.Since(start))
		s.respond(resp)
	}()
}

func responseStatus(resp *protocol.Response) string {
	if resp.Error != nil {
		return "error"
	}
	return "ok"
}

// handleInitialize runs the responder side of the handshake up to the
// initialize response. Ready waits for notifications/initialized.
func (s *Session) handleInitialize(req *protocol.Request) {
	if err := s.transition(Uninitialized, Initializing); err != nil {
		s.respond(engineerrors.ToErrorResponse(req.ID,
			engineerrors.HandshakeFailed("initialize received in state "+s.State().String())))
		return
	}

	var params protocol.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			hsErr := engineerrors.HandshakeFailed("malformed initialize params").WithDetail(err.Error())
			s.respond(engineerrors.ToErrorResponse(req.ID, hsErr))
			_ = s.Close(hsErr)
			return
		}
	}

	result, negotiated, err := s.neg.acceptInitialize(&params)
	if err != nil {
		s.respond(engineerrors.ToErrorResponse(req.ID, err))
		_ = s.Close(err)
		return
	}

	s.mu.Lock()
	s.pendingInfo = params.ClientInfo
	s.pendingCaps = negotiated
	s.pendingVersion = result.ProtocolVersion
	s.mu.Unlock()

	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		_ = s.Close(engineerrors.HandshakeFailed("failed to marshal initialize result").WithDetail(err.Error()))
		return
	}
	s.respond(resp)
}

func (s *Session) handleNotification(note *protocol.Notification) {
	switch note.Method {
	case protocol.NotificationInitialized:
		s.handleInitialized()
		return
	case protocol.NotificationCancelled:
		s.handleCancelled(note)
		return
	}

	if state := s.State(); state != Ready {
		s.protocolError(engineerrors.SessionNotReady(state.String(), note.Method))
		return
	}
	s.disp.dispatchNotification(s.loopCtx, s.peer, note)
}

// handleInitialized commits the negotiated state on the responder side.
func (s *Session) handleInitialized() {
	s.mu.Lock()
	info, caps, version := s.pendingInfo, s.pendingCaps, s.pendingVersion
	s.mu.Unlock()

	if err := s.transition(Initializing, Ready); err != nil {
		s.protocolError(engineerrors.HandshakeFailed("unexpected initialized notification in state " + s.State().String()))
		return
	}
	s.peer.setNegotiated(info, caps, version)
	s.logger.Info("session ready",
		logging.String("peer", info.Name),
		logging.String("protocol_version", version))
}

// handleCancelled aborts the in-flight inbound handler, if any. The
// request may already have completed; that is not an error.
func (s *Session) handleCancelled(note *protocol.Notification) {
	var params protocol.CancelledParams
	if err := json.Unmarshal(note.Params, &params); err != nil {
		s.protocolError(engineerrors.CodecError(err))
		return
	}

	s.inflightMu.Lock()
	cancel, ok := s.inflight[params.RequestID]
	s.inflightMu.Unlock()
	if ok {
		s.logger.Debug("cancelling in-flight request",
			logging.String("id", params.RequestID.String()),
			logging.String("reason", params.Reason))
		cancel()
	}
}

// respond sends one response, logging send failures instead of returning
// them; there is nobody to return them to.
func (s *Session) respond(resp *protocol.Response) {
	if err := s.sendMessage(s.loopCtx, resp); err != nil {
		s.logger.WithError(err).Warn("failed to send response",
			logging.String("id", resp.ID.String()))
	}
}

// protocolError logs a non-fatal protocol error and fires the callback.
func (s *Session) protocolError(err error) {
	s.logger.WithError(err).Warn("protocol error")
	s.metrics.ProtocolError(errorKind(err))

	s.callbackMu.Lock()
	cb := s.onProtocolError
	s.callbackMu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func errorKind(err error) string {
	if ee, ok := engineerrors.AsEngineError(err); ok {
		return string(ee.Category())
	}
	return "unknown"
}

// transition moves the state machine along one edge. It fails if the
// current state is not the expected origin.
func (s *Session) transition(from, to State) error {
	if !transitionAllowed(from, to) {
		return engineerrors.SessionNotReady(from.String(), "transition to "+to.String())
	}
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		current := s.State()
		if current == Closed {
			return engineerrors.SessionClosedError()
		}
		return engineerrors.SessionNotReady(current.String(), "transition to "+to.String())
	}
	return nil
}

// Close shuts the session down: stop the loops, close the transport, fail
// every pending outbound request, and cancel in-flight inbound handlers.
// Idempotent; only the first call's reason is recorded. A nil reason is a
// local graceful close.
func (s *Session) Close(reason error) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeReason = reason
		s.mu.Unlock()

		s.state.Store(int32(ShuttingDown))
		s.loopCancel()
		_ = s.transport.Close()

		cancelErr := reason
		if cancelErr == nil {
			cancelErr = engineerrors.SessionClosedError()
		}
		if n := s.corr.CancelAll(cancelErr); n > 0 {
			s.logger.Info("cancelled pending requests on close", logging.Int("count", n))
		}
		s.metrics.SetPendingRequests(0)

		s.inflightMu.Lock()
		for id, cancel := range s.inflight {
			cancel()
			delete(s.inflight, id)
		}
		s.inflightMu.Unlock()

		s.state.Store(int32(Closed))
		close(s.closed)
		s.metrics.SessionClosed()

		s.callbackMu.Lock()
		cb := s.onPeerClosed
		unregister := s.unregister
		s.callbackMu.Unlock()
		if unregister != nil {
			unregister()
		}
		if cb != nil {
			cb(reason)
		}
		if reason != nil {
			s.logger.Info("session closed", logging.ErrorField(reason))
		} else {
			s.logger.Info("session closed")
		}
	})
	return nil
}

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// CloseReason returns the error the session closed with, nil before close
// or for a graceful close.
func (s *Session) CloseReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}
