package main

import (
	"os"

	"expstore/internal/chunk"
)

// scanIndexes counts the index entries of chunks [first, last] and returns
// the final one.
func scanIndexes(dir, prefix string, first, last uint32) (int, chunk.IndexEntry, error) {
	var total int
	var tail chunk.IndexEntry
	for id := first; id <= last; id++ {
		r, err := chunk.OpenIndex(chunk.IndexPath(dir, prefix, id))
		if err != nil {
			return 0, tail, err
		}
		n := r.Count()
		if n > 0 {
			if tail, err = r.At(n - 1); err != nil {
				r.Close()
				return 0, tail, err
			}
		}
		total += n
		if err := r.Close(); err != nil {
			return 0, tail, err
		}
	}
	return total, tail, nil
}

// dirSize sums the data and index file sizes of chunks [first, last].
func dirSize(dir, prefix string, first, last uint32) (int64, error) {
	var total int64
	for id := first; id <= last; id++ {
		for _, path := range []string{chunk.DataPath(dir, prefix, id), chunk.IndexPath(dir, prefix, id)} {
			fi, err := os.Stat(path)
			if err != nil {
				return 0, err
			}
			total += fi.Size()
		}
	}
	return total, nil
}
