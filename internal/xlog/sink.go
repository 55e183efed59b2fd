package xlog

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"expstore/internal/experience"
	"expstore/internal/record"
)

const DefaultFlushEvery = 64

type SinkOptions struct {
	FlushEvery int      // Flush the writer after this many appends, default 64
	Tags       []string // stamped on every envelope
}

// Sink adapts a Writer to the experience append port. Like the Writer it
// wraps, it has a single owner.
type Sink struct {
	w          *Writer
	flushEvery int
	tags       []string
	pending    int
	closed     bool
}

var _ experience.Sink = (*Sink)(nil)

func NewSink(w *Writer, opts SinkOptions) *Sink {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	return &Sink{w: w, flushEvery: opts.FlushEvery, tags: opts.Tags}
}

// Append writes e and flushes the writer every FlushEvery appends. A flush
// failure after e was written is returned wrapped in experience.ErrUnflushed.
func (s *Sink) Append(ctx context.Context, e *experience.Experience) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.w.Append(ToEnvelope(e, s.tags)); err != nil {
		return err
	}
	s.pending++
	if s.pending >= s.flushEvery {
		if err := s.Flush(); err != nil {
			return fmt.Errorf("%w: %w", experience.ErrUnflushed, err)
		}
	}
	return nil
}

func (s *Sink) Flush() error {
	s.pending = 0
	return s.w.Flush()
}

// Close flushes the writer and closes it.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Append(s.Flush(), s.w.Close())
}

// Writer exposes the wrapped writer.
func (s *Sink) Writer() *Writer { return s.w }

// ToEnvelope converts e into a float32-vector, discrete-action envelope.
// An empty NextObs is stored as absent.
func ToEnvelope(e *experience.Experience, tags []string) *record.Envelope {
	env := &record.Envelope{
		Ticks:    e.Ticks,
		Episode:  e.Episode,
		Step:     e.Step,
		Reward:   e.Reward,
		Terminal: e.Terminal,
		ObsKind:  record.ObsVectorF32,
		ActKind:  record.ActDiscrete,
		Obs:      experience.EncodeF32(e.Obs),
		Act:      experience.EncodeDiscrete(e.Act),
		Tags:     tags,
	}
	if len(e.NextObs) > 0 {
		env.NextObs = experience.EncodeF32(e.NextObs)
	}
	return env
}
