package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T, l *Loop, init func() error, teardown func()) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx, init, teardown) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := NewLoop(128)
	var (
		order  []int
		active int32
		maxAct int32
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post("task", func() {
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxAct) {
				atomic.StoreInt32(&maxAct, n)
			}
			order = append(order, i)
			atomic.AddInt32(&active, -1)
		}))
	}
	startLoop(t, l, nil, nil)

	require.NoError(t, l.Call(context.Background(), "barrier", func() {}))
	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxAct))
}

func TestLoopInitAndTeardown(t *testing.T) {
	l := NewLoop(0)
	var trail []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		trail = append(trail, s)
		mu.Unlock()
	}

	cancel, errCh := startLoop(t, l,
		func() error { record("init"); return nil },
		func() { record("teardown") })

	require.NoError(t, l.Call(context.Background(), "work", func() { record("work") }))
	cancel()
	require.NoError(t, waitErr(t, errCh))

	assert.Equal(t, []string{"init", "work", "teardown"}, trail)
	assert.False(t, l.Post("late", func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), "late", func() {}), ErrStopped)
}

func TestLoopDrainsBeforeTeardown(t *testing.T) {
	l := NewLoop(16)
	var trail []string
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Run(ctx, nil, func() { trail = append(trail, "teardown") })
	}()

	require.True(t, l.Post("block", func() { <-release }))
	for _, name := range []string{"a", "b"} {
		name := name
		require.True(t, l.Post(name, func() { trail = append(trail, name) }))
	}
	cancel()
	close(release)

	require.NoError(t, waitErr(t, errCh))
	assert.Equal(t, []string{"a", "b", "teardown"}, trail)
	assert.Zero(t, l.Pending())
}

func TestLoopInitFailure(t *testing.T) {
	l := NewLoop(0)
	tornDown := false
	_, errCh := startLoop(t, l,
		func() error { return errors.New("com unavailable") },
		func() { tornDown = true })

	err := waitErr(t, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "com unavailable")
	assert.False(t, tornDown)

	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after init failure")
	}
}

func TestLoopSurvivesPanickingTask(t *testing.T) {
	l := NewLoop(0)
	startLoop(t, l, nil, nil)

	require.NoError(t, l.Call(context.Background(), "panic", func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Call(context.Background(), "after", func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopPostWhenFull(t *testing.T) {
	l := NewLoop(2)
	assert.True(t, l.Post("a", func() {}))
	assert.True(t, l.Post("b", func() {}))
	assert.False(t, l.Post("c", func() {}))
	assert.Equal(t, int64(2), l.Pending())
}

func TestLoopCallContextCancelled(t *testing.T) {
	l := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// no Run: the task is queued but never executed
	assert.ErrorIs(t, l.Call(ctx, "never", func() {}), context.Canceled)
}

type recordingPoster struct {
	posts chan string
}

func (p *recordingPoster) Post(name string, fn func()) bool {
	fn()
	p.posts <- name
	return true
}

func TestSweeperPostsOncePerTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	poster := &recordingPoster{posts: make(chan string, 8)}
	runs := 0
	s := NewSweeper("sweep", 30*time.Second, clock, poster, func() { runs++ })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	for i := 0; i < 3; i++ {
		clock.Advance(30 * time.Second)
		select {
		case name := <-poster.posts:
			assert.Equal(t, "sweep", name)
		case <-waitCtx.Done():
			t.Fatalf("tick %d not posted", i)
		}
	}
	clock.Advance(10 * time.Second)
	select {
	case <-poster.posts:
		t.Fatal("posted before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, runs)
}
