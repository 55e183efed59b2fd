package chunk

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// IndexReader serves index entries from a read-only memory map of an index
// file. A trailing partial entry is ignored.
type IndexReader struct {
	mu     sync.RWMutex
	path   string
	data   []byte // mmap region, nil for an empty file
	count  int
	closed bool
}

func OpenIndex(path string) (*IndexReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := &IndexReader{path: path, count: int(fi.Size() / EntryWidth)}
	if r.count == 0 {
		return r, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, r.count*EntryWidth, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	r.data = data
	return r, nil
}

func (r *IndexReader) Path() string { return r.path }

// Count is the number of whole entries in the file at open time.
func (r *IndexReader) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// At returns the entry at zero-based ordinal i.
func (r *IndexReader) At(i int) (IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return IndexEntry{}, ErrClosed
	}
	if i < 0 || i >= r.count {
		return IndexEntry{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, r.count)
	}
	return UnpackEntry(r.data[i*EntryWidth:]), nil
}

// Range returns up to n entries starting at ordinal start. start may equal
// Count, which yields no entries.
func (r *IndexReader) Range(start, n int) ([]IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	if start < 0 || start > r.count || n < 0 {
		return nil, fmt.Errorf("%w: range [%d, +%d) over %d entries", ErrIndexOutOfRange, start, n, r.count)
	}

	end := min(start+n, r.count)
	out := make([]IndexEntry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, UnpackEntry(r.data[i*EntryWidth:]))
	}
	return out, nil
}

// All returns every entry in file order.
func (r *IndexReader) All() ([]IndexEntry, error) {
	return r.Range(0, r.Count())
}

func (r *IndexReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
