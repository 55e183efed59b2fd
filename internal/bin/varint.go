// Package bin reads and writes the primitive values every xlog layout is
// built from: unsigned LEB128 varints, fixed-width little-endian integers and
// floats, booleans, length-prefixed byte blocks and string arrays.
package bin

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrTruncated      = errors.New("bin: truncated data")
	ErrVarintOverflow = errors.New("bin: varint overflows 64 bits")
	ErrLengthTooLarge = errors.New("bin: length prefix exceeds limit")
)

// MaxVarintLen is the longest encoding of a 64-bit value.
const MaxVarintLen = 10

// Status is the outcome of reading a record length prefix.
type Status int8

const (
	// StatusOK means a complete length was decoded.
	StatusOK Status = iota
	// StatusEndOfData means the stream ended before the first byte: a clean
	// record boundary.
	StatusEndOfData
	// StatusTruncated means the stream ended inside the varint: a torn write.
	StatusTruncated
	// StatusError means the bytes were malformed or the underlying read failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEndOfData:
		return "end-of-data"
	case StatusTruncated:
		return "truncated"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int8(s))
	}
}

// Reader is satisfied by bufio.Reader, bytes.Reader and bytes.Buffer.
type Reader interface {
	io.Reader
	io.ByteReader
}

// Writer is satisfied by bufio.Writer and bytes.Buffer.
type Writer interface {
	io.Writer
	io.ByteWriter
}

// UvarintSize returns the number of bytes WriteUvarint emits for v.
func UvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// AppendUvarint appends the varint encoding of v to dst.
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func WriteUvarint(w io.ByteWriter, v uint64) error {
	for v >= 0x80 {
		if err := w.WriteByte(byte(v) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

// ReadUvarint decodes a varint that must be present. Running out of input
// at any point, including before the first byte, is ErrTruncated.
func ReadUvarint(r io.ByteReader) (uint64, error) {
	v, status, err := ReadLength(r)
	switch status {
	case StatusOK:
		return v, nil
	case StatusEndOfData:
		return 0, fmt.Errorf("%w: missing varint", ErrTruncated)
	default:
		return 0, err
	}
}

// ReadLength decodes a record length prefix and reports whether the stream
// ended cleanly before it, was torn inside it, or held a complete value.
func ReadLength(r io.ByteReader) (uint64, Status, error) {
	var v uint64
	for i := 0; i < MaxVarintLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err != io.EOF {
				return 0, StatusError, err
			}
			if i == 0 {
				return 0, StatusEndOfData, nil
			}
			return 0, StatusTruncated, fmt.Errorf("%w: varint cut after %d bytes", ErrTruncated, i)
		}
		shift := uint(7 * i)
		if i == MaxVarintLen-1 && b > 1 {
			return 0, StatusError, ErrVarintOverflow
		}
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, StatusOK, nil
		}
	}
	return 0, StatusError, ErrVarintOverflow
}

// truncated maps the io package's short-read errors onto ErrTruncated.
func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
