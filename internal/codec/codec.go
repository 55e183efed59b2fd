// Package codec holds the payload transforms applied to a serialized
// envelope before it is framed into a chunk. The active codec's flag is
// written into every chunk header so a reader can pick the matching decoder.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCodec   = errors.New("codec: unknown codec")
	ErrCorruptPayload = errors.New("codec: corrupt payload")
)

// Flags is the 16-bit FLAGS field of a chunk header.
type Flags uint16

const (
	FlagNone   Flags = 0
	FlagSnappy Flags = 1
	FlagZstd   Flags = 2
)

// Codec transforms envelope bytes on their way to and from disk.
// Encode may return src itself; callers must not reuse src until the
// result has been written.
type Codec interface {
	Name() string
	Flags() Flags
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// ForFlags returns the codec that produced a chunk with the given header
// flags.
func ForFlags(f Flags) (Codec, error) {
	switch f {
	case FlagNone:
		return PassThrough{}, nil
	case FlagSnappy:
		return Snappy{}, nil
	case FlagZstd:
		return NewZstd(), nil
	default:
		return nil, fmt.Errorf("%w: flags 0x%04x", ErrUnknownCodec, uint16(f))
	}
}

// ByName resolves the names accepted in configuration files.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "passthrough":
		return PassThrough{}, nil
	case "snappy":
		return Snappy{}, nil
	case "zstd":
		return NewZstd(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
