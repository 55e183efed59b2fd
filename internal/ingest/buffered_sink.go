// Package ingest decouples experience producers from the single goroutine
// allowed to write the log.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"expstore/internal/experience"
)

var (
	ErrSinkClosed     = errors.New("ingest: sink is closed")
	ErrInvalidOptions = errors.New("ingest: invalid options")
)

// Stats is a snapshot of the sink counters.
type Stats struct {
	Accepted int64 // enqueued
	Dropped  int64 // rejected by the Drop policy
	Written  int64 // appended to the inner sink
	Failed   int64 // rejected by the inner sink

	// Unflushed counts written records whose append reported a failed
	// flush. They are included in Written.
	Unflushed int64
}

type flusher interface {
	Flush() error
}

// BufferedSink queues experiences in a bounded FIFO and appends them to an
// inner sink from one background goroutine, in enqueue order.
type BufferedSink struct {
	inner experience.Sink
	opts  Options
	log   *zap.Logger

	queue chan *experience.Experience

	// Producers hold mu shared while sending; Close takes it exclusively
	// after closing done so no send can race the drain.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	drain chan struct{} // no more sends, empty the queue and exit
	abort chan struct{} // shutdown timed out, exit after the current record

	// innerMu serializes the consumer's appends with Close's final
	// flush and close of inner.
	innerMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error

	accepted atomic.Int64
	dropped  atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64

	unflushed atomic.Int64
}

var _ experience.Sink = (*BufferedSink)(nil)

// New starts the consumer goroutine. The BufferedSink takes ownership of
// inner and closes it in Close.
func New(inner experience.Sink, opts Options) (*BufferedSink, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &BufferedSink{
		inner:  inner,
		opts:   opts,
		log:    opts.Logger,
		queue:  make(chan *experience.Experience, opts.Capacity),
		done:   make(chan struct{}),
		drain:  make(chan struct{}),
		abort:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Append enqueues e. The caller must not modify e afterwards.
//
// Under Block a full queue makes Append wait until space frees up, ctx is
// done, or the sink closes. Under Drop a full queue counts e as dropped and
// returns nil.
func (s *BufferedSink) Append(ctx context.Context, e *experience.Experience) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	if s.opts.Overflow == Drop {
		select {
		case s.queue <- e:
			s.accepted.Inc()
		default:
			s.dropped.Inc()
		}
		return nil
	}

	select {
	case s.queue <- e:
		s.accepted.Inc()
		return nil
	case <-s.done:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BufferedSink) run() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.queue:
			s.write(e)
		case <-s.drain:
			for {
				select {
				case e := <-s.queue:
					if !s.write(e) {
						return
					}
				default:
					return
				}
			}
		case <-s.abort:
			return
		}
	}
}

// write appends one record to inner. It reports false once the sink has
// been aborted.
func (s *BufferedSink) write(e *experience.Experience) bool {
	s.innerMu.Lock()
	defer s.innerMu.Unlock()

	select {
	case <-s.abort:
		return false
	default:
	}

	err := s.inner.Append(s.ctx, e)
	switch {
	case err == nil:
		s.written.Inc()
	case errors.Is(err, experience.ErrUnflushed):
		s.written.Inc()
		s.unflushed.Inc()
		s.log.Warn("inner sink flush failed", zap.Int64("ticks", e.Ticks), zap.Error(err))
	default:
		s.failed.Inc()
		s.log.Error("inner sink append failed", zap.Int64("ticks", e.Ticks), zap.Error(err))
	}
	return true
}

// Close stops accepting records, waits up to Options.ShutdownTimeout for the
// queue to drain, then flushes and closes the inner sink. Records still
// queued after the timeout are abandoned.
func (s *BufferedSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.drain)

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()

		timer := time.NewTimer(s.opts.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-finished:
		case <-timer.C:
			s.log.Warn("shutdown timed out, abandoning queued records",
				zap.Duration("timeout", s.opts.ShutdownTimeout),
				zap.Int("queued", len(s.queue)))
			close(s.abort)
			s.cancel()
		}

		s.innerMu.Lock()
		defer s.innerMu.Unlock()
		if f, ok := s.inner.(flusher); ok {
			s.closeErr = f.Flush()
		}
		s.closeErr = multierr.Append(s.closeErr, s.inner.Close())
		s.cancel()

		st := s.Stats()
		s.log.Info("ingest sink closed",
			zap.Int64("accepted", st.Accepted),
			zap.Int64("dropped", st.Dropped),
			zap.Int64("written", st.Written),
			zap.Int64("failed", st.Failed),
			zap.Int64("unflushed", st.Unflushed))
	})
	return s.closeErr
}

func (s *BufferedSink) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Dropped:  s.dropped.Load(),
		Written:  s.written.Load(),
		Failed:   s.failed.Load(),

		Unflushed: s.unflushed.Load(),
	}
}

// Len is the number of queued records.
func (s *BufferedSink) Len() int { return len(s.queue) }

func (s *BufferedSink) Cap() int { return cap(s.queue) }

func (s *BufferedSink) Overflow() Overflow { return s.opts.Overflow }
