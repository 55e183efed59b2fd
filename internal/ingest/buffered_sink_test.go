package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"expstore/internal/experience"
)

// gateSink records appends in order. While the gate is closed every append
// blocks.
type gateSink struct {
	mu      sync.Mutex
	ticks   []int64
	gate    chan struct{}
	started chan struct{} // signaled on append attempts while it has room
	fail    func(e *experience.Experience) error
	flushes atomic.Int64
	closes  atomic.Int64
}

func newGateSink(open bool) *gateSink {
	g := &gateSink{gate: make(chan struct{}), started: make(chan struct{}, 1024)}
	if open {
		close(g.gate)
	}
	return g
}

func (g *gateSink) Append(ctx context.Context, e *experience.Experience) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	if g.fail != nil {
		if err := g.fail(e); err != nil {
			return err
		}
	}
	g.mu.Lock()
	g.ticks = append(g.ticks, e.Ticks)
	g.mu.Unlock()
	return nil
}

func (g *gateSink) Flush() error { g.flushes.Inc(); return nil }

func (g *gateSink) Close() error { g.closes.Inc(); return nil }

func (g *gateSink) open() { close(g.gate) }

func (g *gateSink) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ticks)
}

func exp(i int) *experience.Experience {
	return &experience.Experience{Obs: []float32{float32(i)}, Ticks: int64(i)}
}

func TestBufferedSink_DropWithStalledConsumer(t *testing.T) {
	inner := newGateSink(false)
	s, err := New(inner, Options{Capacity: 8, Overflow: Drop, ShutdownTimeout: 5 * time.Second})
	require.NoError(t, err)

	// Let the consumer take the first record and stall on it.
	require.NoError(t, s.Append(context.Background(), exp(0)))
	<-inner.started

	for i := 1; i < 100; i++ {
		require.NoError(t, s.Append(context.Background(), exp(i)))
	}

	st := s.Stats()
	assert.Equal(t, int64(100), st.Accepted+st.Dropped)
	assert.Equal(t, int64(9), st.Accepted, "one in flight plus a full queue")
	assert.Equal(t, int64(91), st.Dropped)
	assert.Equal(t, 8, s.Len())

	inner.open()
	require.NoError(t, s.Close())

	st = s.Stats()
	assert.Equal(t, int64(9), st.Written)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}, inner.ticks)
	assert.Equal(t, int64(1), inner.flushes.Load())
	assert.Equal(t, int64(1), inner.closes.Load())
}

func TestBufferedSink_BlockDeliversEverything(t *testing.T) {
	inner := newGateSink(false)
	s, err := New(inner, Options{Capacity: 8, Overflow: Block, ShutdownTimeout: 5 * time.Second})
	require.NoError(t, err)

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 0; i < 100; i++ {
			if err := s.Append(context.Background(), exp(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
				return
			}
		}
	}()

	// The producer stalls behind the full queue until the consumer resumes.
	<-inner.started
	select {
	case <-produced:
		t.Fatal("producer finished while the consumer was stalled")
	case <-time.After(50 * time.Millisecond):
	}
	assert.LessOrEqual(t, s.Stats().Accepted, int64(9))

	inner.open()
	<-produced
	require.NoError(t, s.Close())

	st := s.Stats()
	assert.Equal(t, int64(100), st.Accepted)
	assert.Equal(t, int64(0), st.Dropped)
	assert.Equal(t, int64(100), st.Written)
	for i, tick := range inner.ticks {
		require.Equal(t, int64(i), tick, "FIFO order")
	}
}

func TestBufferedSink_ConcurrentProducersExactCounters(t *testing.T) {
	inner := newGateSink(true)
	s, err := New(inner, Options{Capacity: 16, Overflow: Drop})
	require.NoError(t, err)

	const producers, each = 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = s.Append(context.Background(), exp(i))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	st := s.Stats()
	assert.Equal(t, int64(producers*each), st.Accepted+st.Dropped)
	assert.Equal(t, st.Accepted, st.Written)
	assert.Equal(t, int(st.Written), inner.count())
}

func TestBufferedSink_AppendAfterClose(t *testing.T) {
	for _, policy := range []Overflow{Block, Drop} {
		t.Run(policy.String(), func(t *testing.T) {
			s, err := New(newGateSink(true), Options{Overflow: policy})
			require.NoError(t, err)
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Append(context.Background(), exp(0)), ErrSinkClosed)
			assert.NoError(t, s.Close())
		})
	}
}

func TestBufferedSink_CloseReleasesBlockedProducer(t *testing.T) {
	inner := newGateSink(false)
	s, err := New(inner, Options{Capacity: 1, ShutdownTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), exp(0)))
	<-inner.started
	require.NoError(t, s.Append(context.Background(), exp(1)))

	blocked := make(chan error)
	go func() { blocked <- s.Append(context.Background(), exp(2)) }()

	closed := make(chan error)
	go func() { closed <- s.Close() }()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrSinkClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked producer was not released")
	}

	// The stalled consumer ignores nothing but its context, which the timeout
	// cancels.
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung past its timeout")
	}
	assert.Equal(t, int64(0), s.Stats().Written)
	assert.Equal(t, int64(1), inner.closes.Load())
}

func TestBufferedSink_ContextCancelWhileBlocked(t *testing.T) {
	inner := newGateSink(false)
	s, err := New(inner, Options{Capacity: 1})
	require.NoError(t, err)
	defer func() {
		inner.open()
		s.Close()
	}()

	require.NoError(t, s.Append(context.Background(), exp(0)))
	<-inner.started
	require.NoError(t, s.Append(context.Background(), exp(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Append(ctx, exp(2)), context.DeadlineExceeded)
	assert.Equal(t, int64(2), s.Stats().Accepted)
}

func TestBufferedSink_InnerFailuresAreCounted(t *testing.T) {
	inner := newGateSink(true)
	boom := errors.New("disk full")
	inner.fail = func(e *experience.Experience) error {
		if e.Ticks%2 == 1 {
			return boom
		}
		return nil
	}
	s, err := New(inner, Options{Capacity: 4})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(context.Background(), exp(i)))
	}
	require.NoError(t, s.Close())

	st := s.Stats()
	assert.Equal(t, int64(5), st.Written)
	assert.Equal(t, int64(5), st.Failed)
	assert.Equal(t, []int64{0, 2, 4, 6, 8}, inner.ticks)
}

func TestBufferedSink_FailedFlushStillCountsAsWritten(t *testing.T) {
	inner := newGateSink(true)
	inner.fail = func(e *experience.Experience) error {
		if e.Ticks%2 == 1 {
			return fmt.Errorf("%w: fsync: input/output error", experience.ErrUnflushed)
		}
		return nil
	}
	s, err := New(inner, Options{Capacity: 4})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(context.Background(), exp(i)))
	}
	require.NoError(t, s.Close())

	st := s.Stats()
	assert.Equal(t, int64(10), st.Written)
	assert.Equal(t, int64(5), st.Unflushed)
	assert.Zero(t, st.Failed)
}

func TestOptions(t *testing.T) {
	_, err := New(newGateSink(true), Options{Capacity: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = New(newGateSink(true), Options{Overflow: Overflow(9)})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	s, err := New(newGateSink(true), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, s.Cap())
	assert.Equal(t, Block, s.Overflow())
	require.NoError(t, s.Close())

	for in, want := range map[string]Overflow{"": Block, "block": Block, "DROP": Drop} {
		got, err := ParseOverflow(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = ParseOverflow("spill")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
