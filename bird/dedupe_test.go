package bird_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/philippseith/gobird/bird"
	"github.com/stretchr/testify/assert"
)

func TestDedupeCollapsesConcurrentCalls(t *testing.T) {
	d := bird.NewDeduper(time.Second)
	defer d.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (string, error) {
		calls.Add(1)
		<-release
		return "members of r1", nil
	}

	const n = 10
	results := make(chan string, n)
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := bird.Dedupe(d, bird.KindSyncRoomMembers, []any{"r1"}, fn)
			assert.NoError(t, err)
			results <- r
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), calls.Load())
	for r := range results {
		assert.Equal(t, "members of r1", r)
	}
}

func TestDedupeSharesFailureWithoutCaching(t *testing.T) {
	d := bird.NewDeduper(time.Second)
	defer d.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	failure := errors.New("backend gone")
	fn := func() (int, error) {
		calls.Add(1)
		<-release
		return 0, failure
	}

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := bird.Dedupe(d, bird.KindSyncContactAndRoom, nil, fn)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, failure)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := bird.Dedupe(d, bird.KindSyncContactAndRoom, nil, fn)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDedupeCachesWithinExpiry(t *testing.T) {
	d := bird.NewDeduper(50 * time.Millisecond)
	defer d.Close()

	var calls atomic.Int32
	fn := func() (int32, error) {
		return calls.Add(1), nil
	}

	r, err := bird.Dedupe(d, bird.KindSyncRoomMembers, []any{"r1"}, fn)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), r)

	r, err = bird.Dedupe(d, bird.KindSyncRoomMembers, []any{"r1"}, fn)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), r)

	r, err = bird.Dedupe(d, bird.KindSyncRoomMembers, []any{"r2"}, fn)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), r)

	time.Sleep(100 * time.Millisecond)

	r, err = bird.Dedupe(d, bird.KindSyncRoomMembers, []any{"r1"}, fn)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), r)
}

func TestDedupeKeysByKind(t *testing.T) {
	d := bird.NewDeduper(time.Second)
	defer d.Close()

	var calls atomic.Int32
	fn := func() (int32, error) {
		return calls.Add(1), nil
	}

	_, _ = bird.Dedupe(d, bird.KindSyncContactAndRoom, nil, fn)
	_, _ = bird.Dedupe(d, bird.KindSyncAvatar, nil, fn)

	assert.Equal(t, int32(2), calls.Load())
}
