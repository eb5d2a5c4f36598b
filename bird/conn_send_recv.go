package bird

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"braces.dev/errtrace"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joomcode/errorx"
)

// sendLoop is the only writer of the websocket. It takes the frames from the
// request queue, writes them and reports the outcome to the enqueuer. When
// writing fails, it reports the error and cancels the connection, which
// rejects all pending calls and stops the receiveLoop.
func (c *conn) sendLoop() {
	err := func() error {
		for {
			select {
			case <-c.ctx.Done():
				return context.Cause(c.ctx)
			case req := <-c.reqCh:
				err := c.write(req.data)
				req.errCh <- err
				if err != nil {
					c.fail(err)
					return err
				}
			}
		}
	}()
	log().Debugf("breaking sendLoop: %v", err)
}

// receiveLoop is the only reader of the websocket. Every frame is classified
// and either resolves a pending call or is published as an event. Frames
// which can not be parsed are reported as error events, they do not break
// the connection. If reading fails, the error is reported and the connection
// is cancelled.
func (c *conn) receiveLoop() {
	err := func() error {
		for {
			messageType, data, err := c.ws.ReadMessage()
			if err != nil {
				err = errtrace.Wrap(err)
				c.fail(err)
				return err
			}
			if messageType != websocket.TextMessage {
				continue
			}
			c.setLastReceived()
			in, err := parseInbound(data)
			if err != nil {
				c.emit(EventError, errorx.EnsureStackTrace(fmt.Errorf("%w: %w", ErrorInvalidFrame, err)))
				continue
			}
			c.dispatch(in)
		}
	}()
	log().Debugf("breaking receiveLoop: %v", err)
}

// fail reports a broken transport and cancels the connection. Errors caused
// by a connection which is already cancelled, e.g. by Close, are not reported.
func (c *conn) fail(err error) {
	if c.ctx.Err() == nil && c.failed.CompareAndSwap(false, true) {
		c.emit(EventError, errorx.EnsureStackTrace(err))
	}
	c.cancel(err)
}

func (c *conn) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(c.ws.WriteMessage(websocket.TextMessage, data))
}

// enqueueRequest puts a frame into the queue of the sendLoop and waits until
// it has been written.
func (c *conn) enqueueRequest(ctx context.Context, data []byte) error {
	req := request{data: data, errCh: make(chan error, 1)}
	select {
	case <-c.ctx.Done():
		return errorx.EnsureStackTrace(ErrorNotConnected)
	case <-ctx.Done():
		return errorx.EnsureStackTrace(ctx.Err())
	case c.reqCh <- req:
	}
	select {
	case err := <-req.errCh:
		return err
	case <-c.ctx.Done():
		return errorx.EnsureStackTrace(ErrorClosed)
	}
}

// dispatch routes one inbound frame. Heartbeats go to the liveness monitor,
// avatar batches are published, other replies resolve the oldest pending
// call waiting for them and everything else is a chat message.
func (c *conn) dispatch(in *Inbound) {
	inboundFrames.WithLabelValues(string(in.Action)).Inc()

	switch {
	case in.Action == ActionHeartbeat:
		hb := Heartbeat{}
		if err := in.Decode(&hb); err != nil {
			c.emit(EventError, errorx.EnsureStackTrace(fmt.Errorf("%w: %w", ErrorInvalidFrame, err)))
			return
		}
		c.live.signal(hb.State)
		c.emit(EventHeartbeat, hb.State)
	case in.Action == ActionAvatarList:
		avatars := AvatarList{}
		if err := in.Decode(&avatars); err != nil {
			c.emit(EventError, errorx.EnsureStackTrace(fmt.Errorf("%w: %w", ErrorInvalidFrame, err)))
			return
		}
		c.resolvePendingCall(in)
		c.emit(EventAvatar, avatars)
	case in.Action.IsReply() || in.Status != nil:
		if !c.resolvePendingCall(in) {
			log().Debugf("dispatch: no pending call for %s, dropped", in.Action)
		}
	default:
		msg := &MessagePayload{}
		if err := in.Decode(msg); err != nil {
			c.emit(EventError, errorx.EnsureStackTrace(fmt.Errorf("%w: %w", ErrorInvalidFrame, err)))
			return
		}
		classifyMessage(msg)
		c.emit(EventMessage, msg)
	}
}

// classifyMessage gives a chat frame its message id and content type.
func classifyMessage(msg *MessagePayload) {
	msg.MsgID = uuid.NewString()
	kind := msg.Kind()
	if msg.Name == SystemSenderName {
		kind = ContentSystem
	}
	msg.ContentType = &kind
}

func (c *conn) registerPendingCall(reply Action, match func(*Inbound) bool) *pendingCall {
	pc := &pendingCall{
		reply: reply,
		match: match,
		ch:    make(chan Result[*Inbound], 1),
	}

	c.mxPending.Lock()
	defer c.mxPending.Unlock()

	c.pending[reply] = append(c.pending[reply], pc)
	pendingCalls.Inc()
	return pc
}

// removePendingCall reports false if pc was not registered anymore, i.e. its
// result is on the way or already in pc.ch.
func (c *conn) removePendingCall(pc *pendingCall) bool {
	if pc == nil {
		return false
	}

	c.mxPending.Lock()
	defer c.mxPending.Unlock()

	calls := c.pending[pc.reply]
	for i, call := range calls {
		if call == pc {
			c.pending[pc.reply] = append(calls[:i:i], calls[i+1:]...)
			pendingCalls.Dec()
			return true
		}
	}
	return false
}

// resolvePendingCall hands the frame to the first registered call of its
// action which accepts it. The protocol has no correlation id, so two calls
// of the same kind racing each other may get each other's answers.
func (c *conn) resolvePendingCall(in *Inbound) bool {
	pc := func() *pendingCall {
		c.mxPending.Lock()
		defer c.mxPending.Unlock()

		calls := c.pending[in.Action]
		for i, call := range calls {
			if call.match == nil || call.match(in) {
				c.pending[in.Action] = append(calls[:i:i], calls[i+1:]...)
				pendingCalls.Dec()
				return call
			}
		}
		return nil
	}()
	if pc == nil {
		return false
	}
	if in.Status != nil && *in.Status != StatusOK {
		pc.ch <- Err[*Inbound](errorx.EnsureStackTrace(RemoteRejected{
			Action:  in.Action,
			Status:  *in.Status,
			Message: in.Message,
		}))
	} else {
		pc.ch <- Ok(in)
	}
	return true
}

// call sends a frame of the given kind and waits for its reply. Fire and
// forget kinds return as soon as the frame has been written.
func (c *conn) call(ctx context.Context, kind Kind, frame outboundFrame, match func(*Inbound) bool) (in *Inbound, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		callsTotal.WithLabelValues(kind.String(), result).Inc()
	}()

	if !c.Connected() {
		return nil, errorx.EnsureStackTrace(ErrorNotConnected)
	}
	frame.ID = "1"
	frame.BotID = c.botID
	frame.Type = TypeWeb
	frame.Action = kind.Request()

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var pc *pendingCall
	// Register before sending, the answer may arrive before enqueueRequest returns
	if reply := kind.Reply(); reply != "" {
		pc = c.registerPendingCall(reply, match)
	}
	if err := c.enqueueRequest(ctx, data); err != nil {
		c.removePendingCall(pc)
		return nil, err
	}
	if pc == nil {
		return nil, nil
	}
	return c.await(ctx, pc)
}

// await waits for the result of pc. If ctx is done after the reply has been
// taken from the registry, the reply wins, otherwise it would be lost.
func (c *conn) await(ctx context.Context, pc *pendingCall) (*Inbound, error) {
	select {
	case r := <-pc.ch:
		return r.Ok, r.Err
	case <-ctx.Done():
		if c.removePendingCall(pc) {
			return nil, errorx.EnsureStackTrace(ctx.Err())
		}
		r := <-pc.ch
		return r.Ok, r.Err
	}
}

func callAndDecode[T any](ctx context.Context, c *conn, kind Kind, frame outboundFrame, match func(*Inbound) bool) (T, error) {
	var t T
	in, err := c.call(ctx, kind, frame, match)
	if err != nil {
		return t, err
	}
	if err := in.Decode(&t); err != nil {
		return t, errorx.EnsureStackTrace(fmt.Errorf("%w: %w", ErrorInvalidFrame, err))
	}
	return t, nil
}

func (c *conn) setLastReceived() {
	c.mxState.Lock()
	defer c.mxState.Unlock()

	c.lastReceived = time.Now()
}
