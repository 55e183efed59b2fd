package chunk

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"go.uber.org/multierr"

	"expstore/internal/bin"
	"expstore/internal/codec"
	"expstore/internal/record"
)

const readBufferSize = 64 * 1024

// Reader decodes records from one data file. Sequential iteration with Next
// and positional reads with ReadAt may be mixed; ReadAt does not move the
// iteration cursor.
type Reader struct {
	mu     sync.Mutex
	file   *os.File
	br     *bufio.Reader
	header Header
	codec  codec.Codec
	pos    int64 // offset of the next record Next will read
	buf    []byte
	closed bool
}

// Open validates the header at path and selects the payload codec named by
// its flags.
func Open(path string) (*Reader, error) {
	return OpenWith(path, nil)
}

// OpenWith is Open with the payload codec forced to c. A nil c selects the
// codec from the header flags.
func OpenWith(path string, c codec.Codec) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	hdr, err := ReadHeader(f)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%s: %w", path, err), f.Close())
	}
	if c == nil {
		if c, err = codec.ForFlags(hdr.Flags); err != nil {
			return nil, multierr.Append(fmt.Errorf("%s: %w", path, err), f.Close())
		}
	}

	return &Reader{
		file:   f,
		br:     bufio.NewReaderSize(f, readBufferSize),
		header: hdr,
		codec:  c,
		pos:    HeaderSize,
	}, nil
}

func (r *Reader) Path() string { return r.file.Name() }

func (r *Reader) Header() Header { return r.header }

func (r *Reader) Codec() codec.Codec { return r.codec }

// Offset is the position of the record the next call to Next will read.
func (r *Reader) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Next decodes the record at the cursor and returns it with its offset.
// At a clean record boundary at end of file it returns io.EOF. A record cut
// short by a torn write returns an error wrapping bin.ErrTruncated and the
// cursor stays on that record.
func (r *Reader) Next() (int64, *record.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, nil, ErrClosed
	}

	n, status, err := bin.ReadLength(r.br)
	switch status {
	case bin.StatusEndOfData:
		return 0, nil, io.EOF
	case bin.StatusTruncated:
		r.rewind()
		return 0, nil, fmt.Errorf("record at %d: %w", r.pos, err)
	case bin.StatusError:
		return 0, nil, fmt.Errorf("record at %d: length: %w", r.pos, err)
	}

	env, err := r.decode(r.br, n)
	if err != nil {
		r.rewind()
		return 0, nil, fmt.Errorf("record at %d: %w", r.pos, err)
	}

	off := r.pos
	r.pos += int64(bin.UvarintSize(n)) + int64(n)
	return off, env, nil
}

// ReadAt decodes exactly one record whose length prefix starts at off.
func (r *Reader) ReadAt(off int64) (*record.Envelope, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if off < HeaderSize {
		return nil, fmt.Errorf("%w: %d is inside the header", ErrOffsetOutOfRange, off)
	}

	br := bufio.NewReader(io.NewSectionReader(r.file, off, math.MaxInt64-off))
	n, status, err := bin.ReadLength(br)
	switch status {
	case bin.StatusEndOfData:
		return nil, fmt.Errorf("%w: %d is at or past end of data", ErrOffsetOutOfRange, off)
	case bin.StatusTruncated, bin.StatusError:
		return nil, fmt.Errorf("record at %d: %w", off, err)
	}

	env, err := r.decodeFresh(br, n)
	if err != nil {
		return nil, fmt.Errorf("record at %d: %w", off, err)
	}
	return env, nil
}

// Reset moves the cursor back to the first record.
func (r *Reader) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.pos = HeaderSize
	r.rewind()
	return nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// rewind repositions the buffered stream at the cursor so a failed read
// can be retried after the file grows.
func (r *Reader) rewind() {
	r.br.Reset(io.NewSectionReader(r.file, r.pos, math.MaxInt64-r.pos))
}

func (r *Reader) decode(src io.Reader, n uint64) (*record.Envelope, error) {
	if n > bin.MaxBlockLen {
		return nil, fmt.Errorf("%w: %d", bin.ErrLengthTooLarge, n)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	return r.unframe(src, r.buf)
}

func (r *Reader) decodeFresh(src io.Reader, n uint64) (*record.Envelope, error) {
	if n > bin.MaxBlockLen {
		return nil, fmt.Errorf("%w: %d", bin.ErrLengthTooLarge, n)
	}
	return r.unframe(src, make([]byte, n))
}

func (r *Reader) unframe(src io.Reader, buf []byte) (*record.Envelope, error) {
	if _, err := io.ReadFull(src, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: payload of %d bytes", bin.ErrTruncated, len(buf))
		}
		return nil, err
	}
	plain, err := r.codec.Decode(buf)
	if err != nil {
		return nil, err
	}
	return record.Unmarshal(plain)
}
