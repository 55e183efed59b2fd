// Package experience defines the record producers and consumers exchange
// with the storage engine and the two ports they use to do it.
package experience

import (
	"context"
	"errors"
)

// ErrUnflushed marks a Sink.Append error raised after the record itself was
// appended. The record holds its id but may not be durable yet.
var ErrUnflushed = errors.New("experience: appended but not flushed")

// Experience is one observation/action/reward step of an agent.
// An empty NextObs means the next observation is absent.
type Experience struct {
	Obs      []float32
	Act      int32
	Reward   float32
	NextObs  []float32
	Terminal bool
	Ticks    int64
	Episode  int32
	Step     int32
}

// Sink is the append port.
type Sink interface {
	Append(ctx context.Context, e *Experience) error
	Close() error
}

// Iterator is a lazy, finite, single-pass sequence of experiences.
//
//	it := src.ReadRange(from, to)
//	defer it.Close()
//	var e Experience
//	for it.Next(&e) {
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type Iterator interface {
	Next(e *Experience) bool
	Err() error
	Close() error
}

// Source is the range-read port. ReadRange yields experiences whose Ticks
// fall in [fromTicks, toTicks].
type Source interface {
	ReadRange(fromTicks, toTicks int64) Iterator
}
