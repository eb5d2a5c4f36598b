package bird

import (
	"sync"
	"time"

	"github.com/joomcode/errorx"
)

type livenessState int

const (
	livenessAwaitingFirstSignal livenessState = iota
	livenessUp
	livenessSuspectedDown
	livenessTimedOut
)

func (s livenessState) String() string {
	switch s {
	case livenessAwaitingFirstSignal:
		return "AwaitingFirstSignal"
	case livenessUp:
		return "Up"
	case livenessSuspectedDown:
		return "SuspectedDown"
	case livenessTimedOut:
		return "TimedOut"
	}
	return "Unknown"
}

type livenessEvents struct {
	connect func()
	down    func(err error)
	fatal   func(err error)
}

// liveness tells whether the backend behind the websocket is responsive. The
// socket may be open while the automation backend is not, so only heartbeat
// frames move the state.
type liveness struct {
	timeout       time.Duration
	alarmInterval time.Duration
	events        livenessEvents

	state     livenessState
	timer     *time.Timer
	alarm     *time.Ticker
	alarmDone chan struct{}
	stopped   chan struct{}
	mx        sync.Mutex
}

func newLiveness(timeout, alarmInterval time.Duration, events livenessEvents) *liveness {
	return &liveness{
		timeout:       timeout,
		alarmInterval: alarmInterval,
		events:        events,
		stopped:       make(chan struct{}),
	}
}

// start arms the timeout for the first signal.
func (l *liveness) start() {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.timer != nil || l.isStopped() {
		return
	}
	l.timer = time.AfterFunc(l.timeout, l.expire)
}

func (l *liveness) expire() {
	l.mx.Lock()
	if l.state != livenessAwaitingFirstSignal || l.isStopped() {
		l.mx.Unlock()
		return
	}
	l.state = livenessTimedOut
	l.mx.Unlock()

	err := errorx.EnsureStackTrace(ErrorTimeout)
	log().Errorf("liveness: no heartbeat within %v", l.timeout)
	if l.events.fatal != nil {
		l.events.fatal(err)
	}
}

// signal feeds one heartbeat into the state machine. The callbacks run after
// the lock is released, so they may query the state.
func (l *liveness) signal(state HeartbeatState) {
	var notify func()

	l.mx.Lock()
	if l.isStopped() || l.state == livenessTimedOut {
		l.mx.Unlock()
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	switch state {
	case HeartbeatOnline:
		if l.state != livenessUp {
			l.state = livenessUp
			l.stopAlarm()
			notify = l.events.connect
		}
	case HeartbeatOffline, HeartbeatClosing:
		if l.state != livenessSuspectedDown {
			l.state = livenessSuspectedDown
			l.startAlarm()
			if l.events.down != nil {
				err := errorx.EnsureStackTrace(ErrorRemoteDown)
				down := l.events.down
				notify = func() { down(err) }
			}
		}
	default:
		log().Warnf("liveness: unknown heartbeat state %q", state)
	}
	l.mx.Unlock()

	if notify != nil {
		notify()
	}
}

// startAlarm needs l.mx to be held.
func (l *liveness) startAlarm() {
	if l.alarm != nil {
		return
	}
	alarm, done := time.NewTicker(l.alarmInterval), make(chan struct{})
	l.alarm, l.alarmDone = alarm, done
	since := time.Now()
	go func() {
		for {
			select {
			case <-l.stopped:
				return
			case <-done:
				return
			case <-alarm.C:
				log().Warnf("liveness: backend down since %v", time.Since(since).Round(time.Second))
			}
		}
	}()
}

// stopAlarm needs l.mx to be held.
func (l *liveness) stopAlarm() {
	if l.alarm == nil {
		return
	}
	l.alarm.Stop()
	close(l.alarmDone)
	l.alarm, l.alarmDone = nil, nil
}

func (l *liveness) stop() {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.isStopped() {
		return
	}
	close(l.stopped)
	if l.timer != nil {
		l.timer.Stop()
	}
	l.stopAlarm()
}

func (l *liveness) current() livenessState {
	l.mx.Lock()
	defer l.mx.Unlock()

	return l.state
}

func (l *liveness) isStopped() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}
