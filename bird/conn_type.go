package bird

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a Conn.
type State int

const (
	StateConnecting State = iota
	StateWaitingForRemote
	StateUp
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateWaitingForRemote:
		return "WaitingForRemote"
	case StateUp:
		return "Up"
	case StateBroken:
		return "Broken"
	case StateClosed:
		return "Closed"
	}
	return "Unknown"
}

type conn struct {
	connOptions
	emitter

	ws       *websocket.Conn
	endpoint string
	botID    string

	reqCh chan request

	pending   map[Action][]*pendingCall
	mxPending sync.Mutex

	live *liveness

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed chan struct{}
	failed atomic.Bool

	lastReceived time.Time
	isClosed     bool
	mxState      sync.RWMutex
}

type request struct {
	data  []byte
	errCh chan error
}

// pendingCall waits for the next inbound frame of its reply action which
// match accepts. A nil match accepts every frame.
type pendingCall struct {
	reply Action
	match func(*Inbound) bool
	ch    chan Result[*Inbound]
}
