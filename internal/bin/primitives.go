package bin

import (
	"fmt"
	"io"
	"math"

	"expstore/pkg"
)

// MaxBlockLen bounds a single length-prefixed block or string.
const MaxBlockLen = 1 << 30

func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	pkg.Encod.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return pkg.Encod.Uint16(buf[:]), nil
}

func WriteInt32(w io.Writer, v int32) error {
	var buf [pkg.LenInt32]byte
	pkg.Encod.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadInt32(r io.Reader) (int32, error) {
	var buf [pkg.LenInt32]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return int32(pkg.Encod.Uint32(buf[:])), nil
}

func WriteInt64(w io.Writer, v int64) error {
	var buf [pkg.LenInt64]byte
	pkg.Encod.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadInt64(r io.Reader) (int64, error) {
	var buf [pkg.LenInt64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return int64(pkg.Encod.Uint64(buf[:])), nil
}

func WriteFloat32(w io.Writer, v float32) error {
	var buf [pkg.LenFloat32]byte
	pkg.Encod.PutUint32(buf[:], math.Float32bits(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadFloat32(r io.Reader) (float32, error) {
	var buf [pkg.LenFloat32]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return math.Float32frombits(pkg.Encod.Uint32(buf[:])), nil
}

func WriteFloat64(w io.Writer, v float64) error {
	var buf [pkg.LenInt64]byte
	pkg.Encod.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadFloat64(r io.Reader) (float64, error) {
	var buf [pkg.LenInt64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return math.Float64frombits(pkg.Encod.Uint64(buf[:])), nil
}

func WriteBool(w io.ByteWriter, v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// ReadBool treats any non-zero byte as true.
func ReadBool(r io.ByteReader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, truncated(err)
	}
	return b != 0, nil
}

// WriteBytes writes a varint length followed by data. A nil block is
// written as length zero.
func WriteBytes(w Writer, data []byte) error {
	if err := WriteUvarint(w, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// ReadBytes reads a length-prefixed block. A stored length of zero yields an
// empty, non-nil slice.
func ReadBytes(r Reader) ([]byte, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncated(err)
	}
	return buf, nil
}

// WriteStrings writes a varint count followed by each string as a
// length-prefixed UTF-8 block. A nil array is written as count zero.
func WriteStrings(w Writer, items []string) error {
	if err := WriteUvarint(w, uint64(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := WriteUvarint(w, uint64(len(it))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, it); err != nil {
			return err
		}
	}
	return nil
}

// ReadStrings reads a string array. A stored count of zero yields an empty,
// non-nil slice.
func ReadStrings(r Reader) ([]string, error) {
	n, err := readLen(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []string{}, nil
	}
	out := make([]string, n)
	var buf []byte
	for i := range out {
		l, err := readLen(r)
		if err != nil {
			return nil, err
		}
		if cap(buf) < l {
			buf = make([]byte, l)
		}
		buf = buf[:l]
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, truncated(err)
		}
		out[i] = string(buf)
	}
	return out, nil
}

func readLen(r io.ByteReader) (int, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	if n > MaxBlockLen {
		return 0, fmt.Errorf("%w: %d", ErrLengthTooLarge, n)
	}
	return int(n), nil
}
