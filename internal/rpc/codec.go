package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/logging"
)

// NotificationHandler handles a server-initiated notification.
type NotificationHandler func(params json.RawMessage)

// RequestHandler handles a server-initiated request and returns its result.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Codec frames, sends, and correlates JSON-RPC 2.0 messages over a duplex
// byte stream (C2). One Codec serves one underlying connection — an LSP
// server's stdio pipes, or an MCP host's stdio pipes.
type Codec struct {
	log logging.Logger

	writeMu sync.Mutex
	writer  *frameWriter

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall
	orphaned  map[int64]bool

	notificationMu sync.RWMutex
	notifications  map[string]NotificationHandler

	requestMu sync.RWMutex
	requests  map[string]RequestHandler

	closed   chan struct{}
	closeErr error
	closeOne sync.Once
}

type pendingCall struct {
	resultCh chan rpcResult
}

type rpcResult struct {
	raw json.RawMessage
	err error
}

// NewCodec wraps rw with the given framing and starts the read pump. Callers
// must call Close when the underlying connection is finished.
func NewCodec(r io.Reader, w io.Writer, framing Framing, log logging.Logger) *Codec {
	c := &Codec{
		log:           log,
		writer:        &frameWriter{w: w, framing: framing},
		pending:       make(map[int64]*pendingCall),
		orphaned:      make(map[int64]bool),
		notifications: make(map[string]NotificationHandler),
		requests:      make(map[string]RequestHandler),
		closed:        make(chan struct{}),
	}
	go c.readLoop(newFrameReader(r, framing))
	return c
}

// OnNotification registers the handler invoked for server-initiated
// notifications of the given method. Only one handler per method.
func (c *Codec) OnNotification(method string, h NotificationHandler) {
	c.notificationMu.Lock()
	defer c.notificationMu.Unlock()
	c.notifications[method] = h
}

// OnRequest registers the handler invoked for server-initiated requests of
// the given method (e.g. workspace/applyEdit, client/registerCapability).
func (c *Codec) OnRequest(method string, h RequestHandler) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()
	c.requests[method] = h
}

// Call sends a request and blocks until the matching response arrives, ctx
// is cancelled, or the connection closes. The default per-request timeout
// is applied by the caller via context.WithTimeout; Call itself only reacts
// to ctx.
func (c *Codec) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	msg, err := newRequest(id, method, params)
	if err != nil {
		return bridgeerr.Wrap(err, bridgeerr.Internal, "marshal request params")
	}

	call := &pendingCall{resultCh: make(chan rpcResult, 1)}
	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	writeErr := c.writer.writeMessage(msg)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return bridgeerr.Wrap(writeErr, bridgeerr.ConnectionLost, fmt.Sprintf("send %s", method))
	}

	select {
	case res := <-call.resultCh:
		if res.err != nil {
			return res.err
		}
		if result == nil || len(res.raw) == 0 || string(res.raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(res.raw, result); err != nil {
			return bridgeerr.Wrap(err, bridgeerr.Internal, fmt.Sprintf("unmarshal %s result", method))
		}
		return nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.orphaned[id] = true
		c.pendingMu.Unlock()
		return bridgeerr.Wrap(ctx.Err(), bridgeerr.Timeout, fmt.Sprintf("waiting for %s response", method))
	case <-c.closed:
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return bridgeerr.Wrap(c.closeErr, bridgeerr.ConnectionLost, fmt.Sprintf("connection closed during %s", method))
	}
}

// Notify sends a one-way notification; there is no response to correlate.
func (c *Codec) Notify(ctx context.Context, method string, params any) error {
	msg, err := newNotification(method, params)
	if err != nil {
		return bridgeerr.Wrap(err, bridgeerr.Internal, "marshal notification params")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writer.writeMessage(msg); err != nil {
		return bridgeerr.Wrap(err, bridgeerr.ConnectionLost, fmt.Sprintf("send notification %s", method))
	}
	return nil
}

// Close marks the codec closed; all pending calls fail with ConnectionLost.
func (c *Codec) Close(cause error) {
	c.closeOne.Do(func() {
		c.closeErr = cause
		close(c.closed)
	})
}

func (c *Codec) readLoop(fr *frameReader) {
	for {
		msg, err := fr.readMessage()
		if err != nil {
			c.failAllPending(err)
			c.Close(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Codec) dispatch(msg *Message) {
	switch {
	case msg.IsResponse():
		c.resolveResponse(msg)
	case msg.IsNotification():
		c.dispatchNotification(msg)
	case msg.IsRequest():
		c.dispatchRequest(msg)
	}
}

func (c *Codec) resolveResponse(msg *Message) {
	id := *msg.ID
	c.pendingMu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	orphaned := c.orphaned[id]
	delete(c.orphaned, id)
	c.pendingMu.Unlock()

	if !ok {
		if !orphaned {
			c.log.Warning("discarding response for unknown request id {RequestID}", id)
		}
		return
	}
	if msg.Error != nil {
		call.resultCh <- rpcResult{err: bridgeerr.Newf(bridgeerr.Internal, "rpc error %d: %s", msg.Error.Code, msg.Error.Message)}
		return
	}
	call.resultCh <- rpcResult{raw: msg.Result}
}

func (c *Codec) dispatchNotification(msg *Message) {
	c.notificationMu.RLock()
	h, ok := c.notifications[msg.Method]
	c.notificationMu.RUnlock()
	if !ok {
		return
	}
	h(msg.Params)
}

func (c *Codec) dispatchRequest(msg *Message) {
	c.requestMu.RLock()
	h, ok := c.requests[msg.Method]
	c.requestMu.RUnlock()
	if !ok {
		c.writeMu.Lock()
		_ = c.writer.writeMessage(newErrorResponse(*msg.ID, -32601, fmt.Sprintf("method not found: %s", msg.Method)))
		c.writeMu.Unlock()
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		result, err := h(ctx, msg.Params)
		var resp *Message
		if err != nil {
			resp = newErrorResponse(*msg.ID, -32603, err.Error())
		} else {
			resp, err = newResponse(*msg.ID, result)
			if err != nil {
				resp = newErrorResponse(*msg.ID, -32603, err.Error())
			}
		}
		c.writeMu.Lock()
		_ = c.writer.writeMessage(resp)
		c.writeMu.Unlock()
	}()
}

func (c *Codec) failAllPending(cause error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, call := range c.pending {
		call.resultCh <- rpcResult{err: bridgeerr.Wrap(cause, bridgeerr.ConnectionLost, "connection closed")}
		delete(c.pending, id)
	}
}
