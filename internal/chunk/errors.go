package chunk

import "errors"

var (
	ErrBadMagic         = errors.New("chunk: bad magic, not an xlog data file")
	ErrVersionMismatch  = errors.New("chunk: unsupported format version")
	ErrClosed           = errors.New("chunk: use of closed file")
	ErrIndexOutOfRange  = errors.New("chunk: index ordinal out of range")
	ErrOffsetOutOfRange = errors.New("chunk: offset out of range")
	ErrInvalidChunkName = errors.New("chunk: invalid chunk file name")
)
