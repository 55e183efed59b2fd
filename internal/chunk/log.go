package chunk

import (
	"bufio"
	"fmt"
	"os"

	"go.uber.org/multierr"

	"expstore/internal/bin"
	"expstore/internal/codec"
)

const writeBufferSize = 64 * 1024

// createExclusive opens a brand-new file for appending. An existing file at
// path fails with fs.ErrExist.
func createExclusive(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Log is the write side of one data file. It is not safe for concurrent use.
type Log struct {
	file   *os.File
	w      *bufio.Writer
	size   int64
	closed bool
}

// CreateLog creates the data file at path and writes its header through
// to the file.
func CreateLog(path string, flags codec.Flags) (*Log, error) {
	f, err := createExclusive(path)
	if err != nil {
		return nil, err
	}

	l := &Log{file: f, w: bufio.NewWriterSize(f, writeBufferSize)}
	hdr := Header{Version: FormatVersion, Flags: flags}.Marshal()
	if _, err := l.w.Write(hdr); err != nil {
		return nil, multierr.Append(fmt.Errorf("write header: %w", err), f.Close())
	}
	// The header reaches the OS before any record does.
	if err := l.w.Flush(); err != nil {
		return nil, multierr.Append(fmt.Errorf("write header: %w", err), f.Close())
	}
	l.size = int64(len(hdr))
	return l, nil
}

// Size is the number of bytes written, buffered or not.
func (l *Log) Size() int64 { return l.size }

func (l *Log) Path() string { return l.file.Name() }

// Append frames payload as LEN(varint) | PAYLOAD and returns the offset of
// the length prefix.
func (l *Log) Append(payload []byte) (int64, error) {
	if l.closed {
		return 0, ErrClosed
	}

	pos := l.size
	if err := bin.WriteUvarint(l.w, uint64(len(payload))); err != nil {
		return 0, err
	}
	if _, err := l.w.Write(payload); err != nil {
		return 0, err
	}
	l.size += int64(bin.UvarintSize(uint64(len(payload))) + len(payload))
	return pos, nil
}

// Flush pushes buffered bytes to the OS and syncs the file.
func (l *Log) Flush() error {
	if l.closed {
		return ErrClosed
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close hands buffered bytes to the OS and closes the file without syncing.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return multierr.Append(l.w.Flush(), l.file.Close())
}

// IndexLog is the write side of one index file.
type IndexLog struct {
	file    *os.File
	w       *bufio.Writer
	entries int64
	scratch [EntryWidth]byte
	closed  bool
}

// CreateIndexLog creates the index file at path. Index files carry no header.
func CreateIndexLog(path string) (*IndexLog, error) {
	f, err := createExclusive(path)
	if err != nil {
		return nil, err
	}
	return &IndexLog{file: f, w: bufio.NewWriterSize(f, writeBufferSize)}, nil
}

func (x *IndexLog) Path() string { return x.file.Name() }

// Count is the number of entries appended.
func (x *IndexLog) Count() int64 { return x.entries }

func (x *IndexLog) Append(e IndexEntry) error {
	if x.closed {
		return ErrClosed
	}
	e.Pack(x.scratch[:])
	if _, err := x.w.Write(x.scratch[:]); err != nil {
		return err
	}
	x.entries++
	return nil
}

func (x *IndexLog) Flush() error {
	if x.closed {
		return ErrClosed
	}
	if err := x.w.Flush(); err != nil {
		return err
	}
	return x.file.Sync()
}

func (x *IndexLog) Close() error {
	if x.closed {
		return nil
	}
	x.closed = true
	return multierr.Append(x.w.Flush(), x.file.Close())
}
