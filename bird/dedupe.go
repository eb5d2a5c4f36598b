package bird

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultDedupeExpiry is the time a settled result is handed out to new
// callers of the same call.
const DefaultDedupeExpiry = 10 * time.Second

// Deduper collapses identical calls. While a call is in flight, identical
// calls wait for its outcome instead of hitting the backend again, and a
// successful outcome is reused until it expires. Failures are never cached.
type Deduper struct {
	results *ttlcache.Cache[string, Result[any]]
	jobs    map[string][]chan Result[any]
	mx      sync.Mutex
	once    sync.Once
}

func NewDeduper(expiry time.Duration) *Deduper {
	if expiry <= 0 {
		expiry = DefaultDedupeExpiry
	}
	results := ttlcache.New[string, Result[any]](
		ttlcache.WithTTL[string, Result[any]](expiry),
		ttlcache.WithDisableTouchOnHit[string, Result[any]](),
	)
	go results.Start()
	return &Deduper{
		results: results,
		jobs:    map[string][]chan Result[any]{},
	}
}

// Close drops all settled results and stops the expiry sweep. Calls in
// flight still deliver to their waiters.
func (d *Deduper) Close() {
	d.once.Do(func() {
		d.results.Stop()
		d.results.DeleteAll()
	})
}

// Forget drops the settled result of the call, the next identical call runs
// again. A call in flight is not affected.
func (d *Deduper) Forget(kind Kind, args ...any) {
	d.mx.Lock()
	defer d.mx.Unlock()

	d.results.Delete(dedupeKey(kind, args))
}

// Dedupe runs fn unless an identical call, same kind and same args, is in
// flight or has succeeded within the expiry window.
func Dedupe[T any](d *Deduper, kind Kind, args []any, fn func() (T, error)) (T, error) {
	key := dedupeKey(kind, args)

	d.mx.Lock()
	if item := d.results.Get(key); item != nil {
		d.mx.Unlock()
		dedupeTotal.WithLabelValues(kind.String(), "hit").Inc()
		return as[T](item.Value())
	}
	if chans, ok := d.jobs[key]; ok {
		ch := make(chan Result[any], 1)
		d.jobs[key] = append(chans, ch)
		d.mx.Unlock()
		dedupeTotal.WithLabelValues(kind.String(), "wait").Inc()
		return as[T](<-ch)
	}
	d.jobs[key] = []chan Result[any]{}
	d.mx.Unlock()
	dedupeTotal.WithLabelValues(kind.String(), "miss").Inc()

	t, err := fn()
	result := NewResult[any](t, err)

	d.mx.Lock()
	defer d.mx.Unlock()

	if err == nil {
		d.results.Set(key, result, ttlcache.DefaultTTL)
	} else {
		dedupeTotal.WithLabelValues(kind.String(), "failure").Inc()
	}
	for _, ch := range d.jobs[key] {
		ch <- result
		close(ch)
	}
	delete(d.jobs, key)
	return t, err
}

func dedupeKey(kind Kind, args []any) string {
	b := strings.Builder{}
	b.WriteString(kind.String())
	for _, arg := range args {
		b.WriteString("|")
		b.WriteString(fmt.Sprintf("%#v", arg))
	}
	return b.String()
}

func as[T any](r Result[any]) (T, error) {
	t, _ := r.Ok.(T)
	return t, r.Err
}
