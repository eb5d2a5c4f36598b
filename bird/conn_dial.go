package bird

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joomcode/errorx"
)

// Dial opens a Conn, announces the bot with an enter frame and starts
// watching the heartbeats of the backend.
func Dial(ctx context.Context, endpoint, botID string, options ...ConnOption) (Conn, error) {
	c, err := dial(ctx, endpoint, botID, options...)
	// A nil *conn is not a nil Conn and could not be compared to nil by the caller
	if c == nil {
		return nil, err
	}
	return c, err
}

func dial(ctx context.Context, endpoint, botID string, options ...ConnOption) (*conn, error) {
	opts := defaultConnOptions()
	for _, option := range options {
		if err := option(&opts); err != nil {
			return nil, errorx.EnsureStackTrace(err)
		}
	}

	url := endpoint
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	log().Debugf("dial(%s, %s)", url, botID)

	ws, resp, err := opts.dialer.DialContext(ctx, url, opts.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errorx.EnsureStackTrace(err)
	}

	ws.SetReadLimit(opts.readLimit)

	loopCtx, cancel := context.WithCancelCause(context.Background())
	c := &conn{
		connOptions: opts,
		emitter:     newEmitter(opts.bus),
		ws:          ws,
		endpoint:    endpoint,
		botID:       botID,
		reqCh:       make(chan request),
		pending:     map[Action][]*pendingCall{},
		ctx:         loopCtx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}
	c.live = newLiveness(opts.livenessTimeout, opts.alarmInterval, livenessEvents{
		connect: func() { c.emit(EventConnect) },
		down:    func(err error) { c.emit(EventError, err) },
		fatal: func(err error) {
			c.emit(EventError, err)
			c.cancel(err)
		},
	})

	go c.sendLoop()
	go c.receiveLoop()
	go func() {
		<-loopCtx.Done()
		cause := context.Cause(loopCtx)
		if !errors.Is(cause, ErrorClosed) {
			cause = fmt.Errorf("%w: %w", ErrorClosed, cause)
		}
		cause = errorx.EnsureStackTrace(cause)
		c.cancelAllRequests(cause)
		c.cleanUp()
		c.emit(EventClose, cause)
		close(c.closed)
	}()

	if err := c.enter(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
