package xlog

import "errors"

var (
	ErrClosed            = errors.New("xlog: writer is closed")
	ErrIndexMismatch     = errors.New("xlog: index entry disagrees with its record")
	ErrChunkIDsExhausted = errors.New("xlog: no chunk ids left")
	ErrInvalidConfig     = errors.New("xlog: invalid configuration")
)
