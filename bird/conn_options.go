package bird

import (
	"fmt"
	"net/http"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"github.com/joomcode/errorx"
)

// ConnOption is option for Conn
type ConnOption func(c *connOptions) error

type connOptions struct {
	dialer          *websocket.Dialer
	header          http.Header
	livenessTimeout time.Duration
	alarmInterval   time.Duration
	writeTimeout    time.Duration
	readLimit       int64
	bus             evbus.Bus
}

// DefaultReadLimit is the default maximum size of an inbound frame in bytes.
const DefaultReadLimit = 32 << 20

func defaultConnOptions() connOptions {
	return connOptions{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		livenessTimeout: 30 * time.Second,
		alarmInterval:   5 * time.Second,
		writeTimeout:    10 * time.Second,
		readLimit:       DefaultReadLimit,
	}
}

// WithDialer replaces the websocket.Dialer. Useful for proxies, TLS settings or tests.
func WithDialer(dialer *websocket.Dialer) ConnOption {
	return func(c *connOptions) error {
		if dialer == nil {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: dialer must not be nil", ErrorInvalidArgument))
		}
		c.dialer = dialer
		return nil
	}
}

// WithHeader sets the http header sent with the websocket handshake.
func WithHeader(header http.Header) ConnOption {
	return func(c *connOptions) error {
		c.header = header
		return nil
	}
}

// WithLivenessTimeout sets how long the connection waits for the first
// heartbeat of the backend before it fails. Default is 30s.
func WithLivenessTimeout(timeout time.Duration) ConnOption {
	return func(c *connOptions) error {
		if timeout <= 0 {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: liveness timeout must be greater 0", ErrorInvalidArgument))
		}
		c.livenessTimeout = timeout
		return nil
	}
}

// WithAlarmInterval sets how often a backend which went offline is reported
// in the log until it is online again. Default is 5s.
func WithAlarmInterval(interval time.Duration) ConnOption {
	return func(c *connOptions) error {
		if interval <= 0 {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: alarm interval must be greater 0", ErrorInvalidArgument))
		}
		c.alarmInterval = interval
		return nil
	}
}

// WithWriteTimeout sets the deadline for writing a single frame. Default is 10s.
func WithWriteTimeout(timeout time.Duration) ConnOption {
	return func(c *connOptions) error {
		if timeout <= 0 {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: write timeout must be greater 0", ErrorInvalidArgument))
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithReadLimit sets the maximum size of an inbound frame in bytes. A larger
// frame breaks the connection. Default is DefaultReadLimit.
func WithReadLimit(limit int64) ConnOption {
	return func(c *connOptions) error {
		if limit <= 0 {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: read limit must be greater 0", ErrorInvalidArgument))
		}
		c.readLimit = limit
		return nil
	}
}

// WithEventBus lets the connection publish its events on an existing bus.
func WithEventBus(bus evbus.Bus) ConnOption {
	return func(c *connOptions) error {
		c.bus = bus
		return nil
	}
}
