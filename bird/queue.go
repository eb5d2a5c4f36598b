package bird

import (
	"sync"

	"github.com/joomcode/errorx"
)

// Queue runs calls of the same kind one at a time in submission order. Each
// serialized kind has its own worker, so calls of different kinds may
// interleave.
type Queue struct {
	jobs   map[Kind]chan func()
	closed chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewQueue() *Queue {
	q := &Queue{
		jobs:   map[Kind]chan func(){},
		closed: make(chan struct{}),
	}
	for _, kind := range SerializedKinds() {
		ch := make(chan func())
		q.jobs[kind] = ch
		q.wg.Add(1)
		go q.work(kind, ch)
	}
	return q
}

func (q *Queue) work(kind Kind, jobs <-chan func()) {
	defer q.wg.Done()
	for {
		select {
		case <-q.closed:
			log().Debugf("queue %s: closed", kind)
			return
		case job := <-jobs:
			job()
		}
	}
}

// Close stops the workers after their current call. Calls submitted
// afterwards fail with ErrorClosed.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
	q.wg.Wait()
}

// Enqueue runs fn on the worker of kind and waits for its outcome. Kinds
// without a worker run fn directly.
func Enqueue[T any](q *Queue, kind Kind, fn func() (T, error)) (T, error) {
	var t T
	select {
	case <-q.closed:
		return t, errorx.EnsureStackTrace(ErrorClosed)
	default:
	}

	jobs, ok := q.jobs[kind]
	if !ok {
		log().Warnf("queue: %s is not serialized, running it directly", kind)
		return fn()
	}

	depth := queueDepth.WithLabelValues(kind.String())
	depth.Inc()
	defer depth.Dec()

	done := make(chan Result[T], 1)
	job := func() {
		done <- NewResult(fn())
	}
	select {
	case <-q.closed:
		return t, errorx.EnsureStackTrace(ErrorClosed)
	case jobs <- job:
	}
	r := <-done
	return r.Ok, r.Err
}
