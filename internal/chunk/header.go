package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"expstore/internal/bin"
	"expstore/internal/codec"
	"expstore/pkg"
)

const (
	// HeaderSize is MAGIC(4) | VERSION(2) | FLAGS(2) | RESERVED(8).
	HeaderSize    = pkg.LenMagic + pkg.LenVersion + 2 + 8
	FormatVersion = uint16(1)
)

// Magic opens every data file.
var Magic = [pkg.LenMagic]byte{'X', 'L', 'O', 'G'}

type Header struct {
	Version uint16
	Flags   codec.Flags
}

func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic[:])
	pkg.Encod.PutUint16(buf[4:6], h.Version)
	pkg.Encod.PutUint16(buf[6:8], uint16(h.Flags))
	return buf
}

// ReadHeader reads and validates the data file header. A file that does
// not start with Magic is ErrBadMagic; a known file from another format
// version is ErrVersionMismatch. A file cut short inside the header,
// including an empty one, is bin.ErrTruncated as long as the bytes present
// agree with Magic.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if !bytes.HasPrefix(Magic[:], buf[:min(n, pkg.LenMagic)]) {
			return Header{}, fmt.Errorf("%w: % x", ErrBadMagic, buf[:min(n, pkg.LenMagic)])
		}
		return Header{}, fmt.Errorf("%w: %d of %d header bytes", bin.ErrTruncated, n, HeaderSize)
	}
	if err != nil {
		return Header{}, err
	}
	if !bytes.Equal(buf[:pkg.LenMagic], Magic[:]) {
		return Header{}, fmt.Errorf("%w: % x", ErrBadMagic, buf[:pkg.LenMagic])
	}

	h := Header{
		Version: pkg.Encod.Uint16(buf[4:6]),
		Flags:   codec.Flags(pkg.Encod.Uint16(buf[6:8])),
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, FormatVersion)
	}
	return h, nil
}
