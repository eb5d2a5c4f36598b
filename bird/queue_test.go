package bird_test

import (
	"sync"
	"testing"
	"time"

	"github.com/philippseith/gobird/bird"
	"github.com/stretchr/testify/assert"
)

func TestQueueRunsKindInOrder(t *testing.T) {
	q := bird.NewQueue()
	defer q.Close()

	log := []string{}
	mx := sync.Mutex{}
	record := func(s string) {
		mx.Lock()
		defer mx.Unlock()
		log = append(log, s)
	}

	aStarted := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, err := bird.Enqueue(q, bird.KindSyncRoomMembers, func() (struct{}, error) {
			record("a start")
			close(aStarted)
			time.Sleep(50 * time.Millisecond)
			record("a end")
			return struct{}{}, nil
		})
		assert.NoError(t, err)
		close(done)
	}()
	<-aStarted

	r, err := bird.Enqueue(q, bird.KindSyncRoomMembers, func() (string, error) {
		record("b start")
		return "b", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "b", r)
	<-done

	assert.Equal(t, []string{"a start", "a end", "b start"}, log)
}

func TestQueueKeepsSubmissionOrder(t *testing.T) {
	q := bird.NewQueue()
	defer q.Close()

	order := make(chan int, 5)
	block := make(chan struct{})
	go func() {
		_, _ = bird.Enqueue(q, bird.KindCreateRoom, func() (int, error) {
			<-block
			return 0, nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	wg := sync.WaitGroup{}
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = bird.Enqueue(q, bird.KindCreateRoom, func() (int, error) {
				order <- i
				return i, nil
			})
		}(i)
		// each submission has to be waiting before the next one is made
		time.Sleep(10 * time.Millisecond)
	}
	close(block)
	wg.Wait()
	close(order)

	got := []int{}
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestQueueInterleavesKinds(t *testing.T) {
	q := bird.NewQueue()
	defer q.Close()

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = bird.Enqueue(q, bird.KindCreateRoom, func() (struct{}, error) {
			<-release
			return struct{}{}, nil
		})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	// would block forever if kinds shared a worker
	r, err := bird.Enqueue(q, bird.KindRoomQuit, func() (string, error) {
		return "quit", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "quit", r)

	close(release)
	<-done
}

func TestQueueRunsUnlistedKindDirectly(t *testing.T) {
	q := bird.NewQueue()
	defer q.Close()

	r, err := bird.Enqueue(q, bird.KindSendMessage, func() (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, r)
}

func TestQueueClosed(t *testing.T) {
	q := bird.NewQueue()
	q.Close()

	called := false
	_, err := bird.Enqueue(q, bird.KindRoomQuit, func() (struct{}, error) {
		called = true
		return struct{}{}, nil
	})
	assert.ErrorIs(t, err, bird.ErrorClosed)
	assert.False(t, called)
}
