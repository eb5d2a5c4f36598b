package bird

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/allegro/bigcache/v3"
	evbus "github.com/asaskevich/EventBus"
	"github.com/cenkalti/backoff/v4"
	"github.com/joomcode/errorx"
	"golang.org/x/sync/errgroup"
)

// Manager keeps local mirrors of the contacts, rooms and room members of one
// bot. The mirrors fill lazily: accessors serve from the mirror and sync with
// the backend on a miss. Unforced syncs are deduplicated, forced syncs go
// through the serialization queue.
type Manager struct {
	emitter

	cfg  Config
	opts managerOptions

	conn   Conn
	dialed chan struct{}
	mxConn sync.RWMutex

	dedupe *Deduper
	queue  *Queue

	mirrors   *mirrors
	mxMirrors sync.RWMutex

	messages *bigcache.BigCache

	avatars   *[]Avatar
	mxAvatars sync.Mutex

	loggedIn atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

type mirrors struct {
	contacts *Mirror[ContactPayload]
	rooms    *Mirror[ContactPayload]
	members  *Mirror[RoomMemberSet]
}

// NewManager creates a Manager. It does not connect, see Start.
func NewManager(cfg Config, options ...ManagerOption) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opts := managerOptions{
		backoffFactory: defaultBackoffFactory(cfg.DialRetryMaxElapsed),
	}
	for _, option := range options {
		if err := option(&opts); err != nil {
			return nil, errorx.EnsureStackTrace(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := bigcache.New(ctx, bigcache.DefaultConfig(cfg.MessageCacheLife))
	if err != nil {
		cancel()
		return nil, errorx.EnsureStackTrace(err)
	}

	m := &Manager{
		emitter:  newEmitter(evbus.New()),
		cfg:      cfg,
		opts:     opts,
		dialed:   make(chan struct{}),
		dedupe:   NewDeduper(cfg.DedupeExpiry),
		queue:    NewQueue(),
		messages: messages,
		ctx:      ctx,
		cancel:   cancel,
	}
	for topic, fn := range map[string]any{
		EventConnect: m.onConnect,
		EventAvatar:  m.onAvatar,
		EventMessage: m.onMessage,
	} {
		if err := m.bus.Subscribe(topic, fn); err != nil {
			cancel()
			return nil, errorx.EnsureStackTrace(err)
		}
	}
	return m, nil
}

// Start opens the mirrors and dials the backend, retrying with the dial
// backoff. Once the backend reports online for the first time, the Manager
// emits EventLogin, syncs all mirrors and emits EventReady.
func (m *Manager) Start(ctx context.Context) error {
	log().Debugf("Manager.Start(%s)", m.cfg.BotID)

	if m.ctx.Err() != nil {
		return errorx.EnsureStackTrace(ErrorClosed)
	}
	if err := m.InitCache(m.cfg.BotID); err != nil {
		return err
	}

	options := append([]ConnOption{
		WithEventBus(m.bus),
		WithLivenessTimeout(m.cfg.LivenessTimeout),
		WithAlarmInterval(m.cfg.AlarmInterval),
	}, m.opts.connOptions...)

	conn, err := backoff.RetryNotifyWithData(func() (Conn, error) {
		conn, err := Dial(ctx, m.cfg.Endpoint, m.cfg.BotID, options...)
		// Retrying does not fix an option
		if errors.Is(err, ErrorInvalidArgument) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	}, backoff.WithContext(m.opts.backoffFactory(), ctx), func(err error, next time.Duration) {
		log().Warnf("Manager.Start: dial failed, retrying in %v: %v", next, err)
	})
	if err != nil {
		if rerr := m.ReleaseCache(); rerr != nil {
			log().Warnf("Manager.Start: %v", rerr)
		}
		return errorx.EnsureStackTrace(err)
	}

	m.mxConn.Lock()
	m.conn = conn
	m.mxConn.Unlock()
	close(m.dialed)
	return nil
}

// Stop closes the connection, the dedupe cache, the queue and the mirrors.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		m.stopErr = m.stop()
	})
	return m.stopErr
}

func (m *Manager) stop() error {
	log().Debugf("Manager.Stop()")
	m.cancel()

	var errs []error
	m.mxConn.RLock()
	conn := m.conn
	m.mxConn.RUnlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.queue.Close()
	m.dedupe.Close()
	if err := m.ReleaseCache(); err != nil {
		errs = append(errs, err)
	}
	if err := m.messages.Close(); err != nil {
		errs = append(errs, err)
	}
	return errtrace.Wrap(errors.Join(errs...))
}

// Conn returns the connection once Start has dialed it.
func (m *Manager) Conn() (Conn, error) {
	m.mxConn.RLock()
	defer m.mxConn.RUnlock()

	if m.conn == nil {
		return nil, errorx.EnsureStackTrace(ErrorNotConnected)
	}
	return m.conn, nil
}

// SyncData syncs contacts, rooms, room members and avatars and emits EventReady.
func (m *Manager) SyncData(ctx context.Context) error {
	if err := m.SyncContactsAndRooms(ctx, false); err != nil {
		return err
	}
	if err := m.SyncAllRoomMember(ctx, false); err != nil {
		return err
	}
	if _, err := Dedupe(m.dedupe, KindSyncAvatar, nil, func() (struct{}, error) {
		return struct{}{}, m.SyncAvatar(ctx)
	}); err != nil {
		return err
	}
	m.emit(EventReady)
	return nil
}

// onConnect runs on the receive loop and must not publish, so login and sync
// get their own goroutine.
func (m *Manager) onConnect() {
	if !m.loggedIn.CompareAndSwap(false, true) {
		log().Infof("Manager: backend %s is online again", m.cfg.BotID)
		return
	}
	go func() {
		select {
		case <-m.dialed:
		case <-m.ctx.Done():
			return
		}
		m.emit(EventLogin, m.cfg.BotID)
		if err := m.SyncData(m.ctx); err != nil {
			log().Errorf("Manager: initial sync failed: %v", err)
			m.emit(EventError, err)
		}
	}()
}

// InitCache opens the three mirrors of botID.
func (m *Manager) InitCache(botID string) error {
	log().Debugf("Manager.InitCache(%s)", botID)

	m.mxMirrors.Lock()
	defer m.mxMirrors.Unlock()

	if m.mirrors != nil {
		return errorx.EnsureStackTrace(ErrorCacheAlreadyExists)
	}

	dir := func(name string) string {
		if m.opts.inMemory || m.cfg.CacheDir == "" {
			return ""
		}
		return filepath.Join(m.cfg.CacheDir, botID, name)
	}

	mr := &mirrors{}
	g := errgroup.Group{}
	g.Go(func() (err error) {
		mr.contacts, err = OpenMirror[ContactPayload]("contact", dir("contact-raw-payload"))
		return err
	})
	g.Go(func() (err error) {
		mr.rooms, err = OpenMirror[ContactPayload]("room", dir("room-raw-payload"))
		return err
	})
	g.Go(func() (err error) {
		mr.members, err = OpenMirror[RoomMemberSet]("room-member", dir("room-member-raw-payload"))
		return err
	})
	if err := g.Wait(); err != nil {
		_ = mr.close()
		return errorx.EnsureStackTrace(err)
	}
	m.mirrors = mr

	contacts, _ := mr.contacts.Len()
	rooms, _ := mr.rooms.Len()
	log().Infof("Manager.InitCache: %d contacts, %d rooms, cache dir %q", contacts, rooms, dir(""))
	return nil
}

// ReleaseCache closes the mirrors. Releasing a cache which is not open is no error.
func (m *Manager) ReleaseCache() error {
	m.mxMirrors.Lock()
	defer m.mxMirrors.Unlock()

	if m.mirrors == nil {
		log().Debugf("Manager.ReleaseCache: no cache")
		return nil
	}
	err := m.mirrors.close()
	m.mirrors = nil
	return err
}

func (m *Manager) cache() (*mirrors, error) {
	m.mxMirrors.RLock()
	defer m.mxMirrors.RUnlock()

	if m.mirrors == nil {
		return nil, errorx.EnsureStackTrace(ErrorCacheUninitialized)
	}
	return m.mirrors, nil
}

func (mr *mirrors) close() error {
	g := errgroup.Group{}
	if mr.contacts != nil {
		g.Go(mr.contacts.Close)
	}
	if mr.rooms != nil {
		g.Go(mr.rooms.Close)
	}
	if mr.members != nil {
		g.Go(mr.members.Close)
	}
	return g.Wait()
}

func (m *Manager) connection() (Conn, error) {
	conn, err := m.Conn()
	if err != nil {
		return nil, err
	}
	if !conn.Connected() {
		return nil, errorx.EnsureStackTrace(ErrorNotConnected)
	}
	return conn, nil
}

func notFound(what, id string) error {
	return errorx.EnsureStackTrace(fmt.Errorf("%w: %s %s", ErrorNotFound, what, id))
}
