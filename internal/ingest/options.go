package ingest

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Overflow chooses what Append does when the queue is full.
type Overflow int

const (
	// Block waits for space; nothing is lost but producers can stall.
	Block Overflow = iota
	// Drop returns at once and counts the record as dropped.
	Drop
)

func (o Overflow) String() string {
	switch o {
	case Block:
		return "block"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("overflow(%d)", int(o))
	}
}

func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return Block, nil
	case "drop":
		return Drop, nil
	default:
		return Block, fmt.Errorf("%w: overflow policy %q", ErrInvalidOptions, s)
	}
}

const (
	DefaultCapacity        = 4096
	DefaultShutdownTimeout = 2 * time.Second
)

type Options struct {
	Capacity        int
	Overflow        Overflow
	ShutdownTimeout time.Duration // bound on draining during Close
	Logger          *zap.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Capacity < 0 {
		return o, fmt.Errorf("%w: capacity %d", ErrInvalidOptions, o.Capacity)
	}
	if o.Overflow != Block && o.Overflow != Drop {
		return o, fmt.Errorf("%w: %s", ErrInvalidOptions, o.Overflow)
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}
