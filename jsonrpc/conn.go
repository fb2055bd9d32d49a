package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaharia-lab/flowplugin/observability"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Conn is one end of a bidirectional JSON-RPC connection over a duplex byte
// stream. It serves inbound requests through its Router and lets the
// application call the peer with Request.
type Conn struct {
	codec   *Codec
	router  *Router
	pending *pendingRequests
	tasks   *TaskRegistry
	logger  observability.Logger
	metrics *observability.Metrics
	sem     *semaphore.Weighted

	sessionID      string
	requestTimeout time.Duration
	handlerTimeout time.Duration
	replyOnCancel  bool

	running atomic.Bool

	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// NewConn creates a connection reading frames from r and writing frames to w.
func NewConn(r io.Reader, w io.Writer, opts ...Option) *Conn {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = observability.NewNullLogger()
	}
	if cfg.router == nil {
		cfg.router = NewRouter()
	}

	sessionID := uuid.NewString()
	c := &Conn{
		codec:          NewCodec(r, w, cfg.maxFrameBytes),
		router:         cfg.router,
		pending:        newPendingRequests(),
		tasks:          NewTaskRegistry(),
		metrics:        cfg.metrics,
		sessionID:      sessionID,
		requestTimeout: cfg.requestTimeout,
		handlerTimeout: cfg.handlerTimeout,
		replyOnCancel:  cfg.replyOnCancel,
		logger: cfg.logger.WithFields(map[string]interface{}{
			"component":  "jsonrpc",
			"session_id": sessionID,
		}),
	}
	if cfg.maxConcurrentHandlers > 0 {
		c.sem = semaphore.NewWeighted(cfg.maxConcurrentHandlers)
	}
	return c
}

// SessionID identifies this connection in logs.
func (c *Conn) SessionID() string {
	return c.sessionID
}

// Router returns the dispatch table of inbound methods.
func (c *Conn) Router() *Router {
	return c.router
}

// Tasks returns the registry of in-flight inbound requests.
func (c *Conn) Tasks() *TaskRegistry {
	return c.tasks
}

// Pending returns the number of outbound requests awaiting a reply.
func (c *Conn) Pending() int {
	return c.pending.len()
}

// Register adds an inbound method handler. It must be called before Run.
func (c *Conn) Register(name string, h Handler) error {
	return c.router.Register(name, h)
}

// RegisterFunc adds an inbound method handler function. It must be called before Run.
func (c *Conn) RegisterFunc(name string, f func(ctx context.Context, params Params) (interface{}, error)) error {
	return c.router.Register(name, HandlerFunc(f))
}

// Run reads frames until the stream ends, the context is cancelled or a read
// fails, dispatching every inbound request and notification on its own
// goroutine. It returns nil at end of stream.
//
// Before returning, Run fails all outbound waiters with ErrConnClosed and
// waits for running handlers; on context cancellation the handlers are
// cancelled first. The read goroutine stays blocked in the underlying reader
// until that reader is closed.
func (c *Conn) Run(ctx context.Context) (err error) {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("connection is already running")
	}
	c.router.freeze()

	ctx, span := observability.StartSpan(ctx, "jsonrpc.Conn.Run")
	defer func() {
		if errors.Is(err, context.Canceled) {
			observability.EndSpan(span, nil)
			return
		}
		observability.EndSpan(span, err)
	}()

	c.logger.Infof("Connection started with %d registered methods", len(c.router.Methods()))

	done := make(chan error, 1)
	go func() {
		done <- c.readLoop(ctx)
	}()

	select {
	case <-ctx.Done():
		err = ctx.Err()
		c.logger.Debug("Context cancelled, connection shutting down")
	case err = <-done:
		if err != nil {
			c.logger.WithErr(err).Error("Connection read loop failed")
		} else {
			c.logger.Debug("End of stream, connection shutting down")
		}
	}

	c.shutdown(ctx)
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		frame, err := c.codec.ReadFrame()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				c.metrics.MessageReceived("invalid")
				c.logger.WithErr(parseErr.Err).Warnf("Failed to parse frame: %s", parseErr.Line)
				id, reason := parseErr.ID, parseErr.Err.Error()
				c.spawn(func() {
					c.sendError(id, NewParseError(reason))
				})
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		c.logger.Debugf("Received frame: %s", frame)
		c.handleFrame(ctx, frame)
	}
}

// handleFrame classifies one frame and routes it. It never blocks on a
// handler or on a write.
func (c *Conn) handleFrame(ctx context.Context, frame json.RawMessage) {
	msg, err := Classify(frame)
	if err != nil {
		c.metrics.MessageReceived("invalid")
		c.logger.WithErr(err).Warn("Received malformed message")
		id := recoverID(frame)
		c.spawn(func() {
			c.sendError(id, NewInvalidRequestError(err.Error()))
		})
		return
	}
	c.metrics.MessageReceived(msg.Kind.String())

	switch msg.Kind {
	case KindRequest:
		// The task is registered before the handler goroutine starts so a
		// cancellation read right after the request always finds it.
		if _, busy := c.tasks.Get(*msg.ID); busy {
			c.logger.Warnf("Request id %d reused while still in flight; cancellations now target the newer request", *msg.ID)
		}
		task := c.tasks.Start(ctx, *msg.ID)
		if !c.spawn(func() { c.handleRequest(task, msg) }) {
			c.tasks.Finish(task)
		}

	case KindNotification:
		if msg.Method == CancelRequestMethod {
			c.handleCancel(msg)
			return
		}
		c.spawn(func() { c.handleNotification(ctx, msg) })

	case KindResponse, KindError:
		c.handleReply(msg)
	}
}

// spawn runs fn on a tracked goroutine unless the connection is stopping.
func (c *Conn) spawn(fn func()) bool {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Conn) handleRequest(task *Task, msg *Message) {
	defer c.tasks.Finish(task)
	c.metrics.InFlightDelta(1)
	defer c.metrics.InFlightDelta(-1)

	id := *msg.ID
	logger := c.logger.WithFields(map[string]interface{}{"method": msg.Method, "id": id})

	ctx, span := observability.StartSpan(task.Context(), "jsonrpc.handle "+msg.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(observability.RPCAttributes(msg.Method, id)...))
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.finishCancelled(task, logger)
			return
		}
		defer c.sem.Release(1)
	}

	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	handler, ok := c.router.Lookup(msg.Method)
	if !ok {
		logger.Warn("Method not found")
		spanErr = NewMethodNotFoundError(msg.Method)
		c.sendError(&id, NewMethodNotFoundError(msg.Method))
		return
	}

	params, err := parseParams(msg.Params)
	if err != nil {
		logger.WithErr(err).Warn("Invalid params")
		spanErr = err
		c.sendError(&id, NewInvalidParamsError(err.Error()))
		return
	}

	result, err := c.invoke(ctx, logger, handler, params)

	if task.Cancelled() {
		c.finishCancelled(task, logger)
		return
	}

	if err != nil {
		rpcErr := toRPCError(err)
		logger.WithErr(err).Errorf("Handler failed with code %d", rpcErr.Code)
		spanErr = err
		c.sendError(&id, rpcErr)
		return
	}

	c.sendResult(id, result)
}

// invoke runs the handler, turning a panic into an internal error.
func (c *Conn) invoke(ctx context.Context, logger observability.Logger, h Handler, params Params) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Handler panicked: %v\n%s", r, debug.Stack())
			result = nil
			err = NewInternalError(fmt.Sprint(r))
		}
	}()
	return h.Handle(ctx, params)
}

func (c *Conn) finishCancelled(task *Task, logger observability.Logger) {
	logger.Debug("Request cancelled")
	c.metrics.ReplySent("cancelled")
	if c.replyOnCancel {
		id := task.ID
		c.sendError(&id, NewError(CodeRequestCancelled, "Request cancelled", nil))
	}
}

func (c *Conn) handleNotification(ctx context.Context, msg *Message) {
	logger := c.logger.WithFields(map[string]interface{}{"method": msg.Method})

	handler, ok := c.router.Lookup(msg.Method)
	if !ok {
		logger.Debug("Unhandled notification")
		return
	}

	params, err := parseParams(msg.Params)
	if err != nil {
		logger.WithErr(err).Warn("Dropping notification with invalid params")
		return
	}

	ctx, span := observability.StartSpan(ctx, "jsonrpc.notification "+msg.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(observability.RPCAttributes(msg.Method, 0)...))
	_, err = c.invoke(ctx, logger, handler, params)
	observability.EndSpan(span, err)
	if err != nil {
		logger.WithErr(err).Error("Notification handler failed")
	}
}

func (c *Conn) handleCancel(msg *Message) {
	id, err := parseCancelID(msg.Params)
	if err != nil {
		c.logger.WithErr(err).Warn("Ignoring malformed cancellation")
		return
	}

	found := c.tasks.Cancel(id)
	c.metrics.Cancellation(found)
	if !found {
		c.logger.Debugf("Cancellation for request %d ignored: %v", id, ErrUnknownCorrelation)
		return
	}
	c.logger.Debugf("Cancelled request %d", id)
}

// parseCancelID accepts {"id":N}, [N] and [{"id":N}].
func parseCancelID(raw json.RawMessage) (int64, error) {
	var obj cancelParams
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return obj.ID, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return 0, fmt.Errorf("%w: cancellation needs an id", ErrInvalidParams)
	}
	if id, err := parseID(list[0]); err == nil && id != nil {
		return *id, nil
	}
	if err := json.Unmarshal(list[0], &obj); err == nil {
		return obj.ID, nil
	}
	return 0, fmt.Errorf("%w: cancellation needs an id", ErrInvalidParams)
}

func (c *Conn) handleReply(msg *Message) {
	if msg.ID == nil {
		if msg.Error != nil {
			c.logger.WithErr(msg.Error).Warn("Peer reported an error without an id")
		}
		c.metrics.UnknownReply()
		return
	}

	r := reply{result: msg.Result}
	if msg.Kind == KindError {
		r = reply{err: msg.Error}
	}

	if !c.pending.resolve(*msg.ID, r) {
		c.metrics.UnknownReply()
		c.logger.Warnf("Dropping %s for id %d: %v", msg.Kind, *msg.ID, ErrUnknownCorrelation)
		return
	}
	c.metrics.PendingDelta(-1)
}

func (c *Conn) sendResult(id int64, result interface{}) {
	err := c.codec.WriteFrame(responseFrame{
		JSONRPC: jsonRPCVersion,
		Result:  result,
		ID:      id,
	})
	if err != nil {
		c.logger.WithErr(err).Errorf("Failed to write result for request %d", id)
		// The result itself may not be serializable.
		c.sendError(&id, NewInternalError(err.Error()))
		return
	}
	c.metrics.ReplySent("result")
}

func (c *Conn) sendError(id *int64, rpcErr *Error) {
	err := c.codec.WriteFrame(errorFrame{
		JSONRPC: jsonRPCVersion,
		Error:   rpcErr,
		ID:      id,
	})
	if err != nil {
		c.logger.WithErr(err).Error("Failed to write error response")
		return
	}
	c.metrics.ReplySent("error")
}

// Request calls method on the peer and waits for its reply. A peer error
// reply is returned as *Error. If ctx ends first the peer is sent
// $/cancelRequest for the id and ctx.Err() is returned.
//
// Without UseRequestTimeout a peer that never answers keeps the caller
// waiting until ctx ends or the connection closes.
func (c *Conn) Request(ctx context.Context, method string, params ...interface{}) (result json.RawMessage, err error) {
	ctx, span := observability.StartSpan(ctx, "jsonrpc.request "+method,
		trace.WithSpanKind(trace.SpanKindClient))
	defer func() { observability.EndSpan(span, err) }()

	id, ch, err := c.pending.add()
	if err != nil {
		return nil, err
	}
	c.metrics.PendingDelta(1)
	span.SetAttributes(observability.RPCAttributes(method, id)...)

	err = c.codec.WriteFrame(requestFrame{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		ID:      id,
		Params:  positional(params),
	})
	if err != nil {
		if c.pending.remove(id) {
			c.metrics.PendingDelta(-1)
		}
		return nil, err
	}

	var timeout <-chan time.Time
	if c.requestTimeout > 0 {
		timer := time.NewTimer(c.requestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		return c.abandon(id, ch, ctx.Err())
	case <-timeout:
		return c.abandon(id, ch, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, method, c.requestTimeout))
	}
}

// abandon gives up on a pending request and tells the peer. If the reply
// won the race it is returned instead.
func (c *Conn) abandon(id int64, ch <-chan reply, cause error) (json.RawMessage, error) {
	if !c.pending.remove(id) {
		r := <-ch
		return r.result, r.err
	}
	c.metrics.PendingDelta(-1)

	err := c.codec.WriteFrame(notificationFrame{
		JSONRPC: jsonRPCVersion,
		Method:  CancelRequestMethod,
		Params:  cancelParams{ID: id},
	})
	if err != nil {
		c.logger.WithErr(err).Warnf("Failed to send cancellation for request %d", id)
	}
	return nil, cause
}

// Call is Request followed by decoding the result into out. A nil out
// discards the result.
func (c *Conn) Call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	raw, err := c.Request(ctx, method, params...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// Notify sends a notification to the peer. No reply is expected.
func (c *Conn) Notify(ctx context.Context, method string, params ...interface{}) error {
	_, span := observability.StartSpan(ctx, "jsonrpc.notify "+method,
		trace.WithSpanKind(trace.SpanKindClient))
	err := c.codec.WriteFrame(notificationFrame{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  positional(params),
	})
	observability.EndSpan(span, err)
	return err
}

func (c *Conn) shutdown(ctx context.Context) {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()

	if n := c.pending.closeAll(ErrConnClosed); n > 0 {
		c.metrics.PendingDelta(-float64(n))
		c.logger.Warnf("Released %d outbound requests without a reply", n)
	}

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		if n := c.tasks.CancelAll(); n > 0 {
			c.logger.Debugf("Cancelled %d in-flight requests", n)
		}
		<-waitDone
	}
	c.logger.Info("Connection closed")
}
