package bird

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joomcode/errorx"
)

// ManagerOption is option for Manager
type ManagerOption func(m *managerOptions) error

type managerOptions struct {
	inMemory       bool
	connOptions    []ConnOption
	backoffFactory func() backoff.BackOff
}

// WithInMemoryCache keeps the mirrors in memory instead of below Config.CacheDir.
func WithInMemoryCache() ManagerOption {
	return func(m *managerOptions) error {
		m.inMemory = true
		return nil
	}
}

// WithConnOptions passes options to the Conn the Manager dials.
func WithConnOptions(options ...ConnOption) ManagerOption {
	return func(m *managerOptions) error {
		m.connOptions = append(m.connOptions, options...)
		return nil
	}
}

// WithDialBackoff configures the backoff strategy for failed dials. See
// https://pkg.go.dev/github.com/cenkalti/backoff/v4 for more information about
// backoff strategies. Default is an exponential backoff which gives up after
// Config.DialRetryMaxElapsed.
func WithDialBackoff(backoffFactory func() backoff.BackOff) ManagerOption {
	return func(m *managerOptions) error {
		if backoffFactory == nil {
			return errorx.EnsureStackTrace(fmt.Errorf("%w: backoff factory must not be nil", ErrorInvalidArgument))
		}
		m.backoffFactory = backoffFactory
		return nil
	}
}

func defaultBackoffFactory(maxElapsed time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.Multiplier = 1.5
		b.MaxElapsedTime = maxElapsed
		return b
	}
}
