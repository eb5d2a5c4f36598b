package bird

import (
	"context"
	"encoding/json"

	"braces.dev/errtrace"
)

// enter announces the bot to the backend. The backend does not answer it;
// it starts sending heartbeats instead, which the liveness monitor watches.
func (c *conn) enter(ctx context.Context) error {
	data, err := json.Marshal(outboundFrame{
		ID:     "1",
		BotID:  c.botID,
		Type:   TypeWeb,
		Action: ActionEnter,
	})
	if err != nil {
		return errtrace.Wrap(err)
	}
	if err := c.enqueueRequest(ctx, data); err != nil {
		return err
	}
	c.live.start()
	return nil
}

func (c *conn) Close() error {
	c.cancel(ErrorClosed)
	<-c.closed
	return nil
}

// cancelAllRequests rejects every pending call. Each pendingCall channel has
// room for exactly one result, so this never blocks.
func (c *conn) cancelAllRequests(err error) {
	c.mxPending.Lock()
	defer c.mxPending.Unlock()

	for _, calls := range c.pending {
		pendingCalls.Sub(float64(len(calls)))
		for _, pc := range calls {
			select {
			case pc.ch <- Err[*Inbound](err):
			default:
			}
		}
	}
	c.pending = map[Action][]*pendingCall{}
}

func (c *conn) cleanUp() {
	c.live.stop()

	c.mxState.Lock()
	defer c.mxState.Unlock()

	c.isClosed = true
	if c.ws != nil {
		if err := c.ws.Close(); err != nil {
			log().Debugf("cleanUp: %v", err)
		}
	}
}
