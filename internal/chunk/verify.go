package chunk

import (
	"errors"
	"io"
	"os"

	"expstore/internal/bin"
)

// Report summarizes a recovery scan of one data file.
type Report struct {
	Path       string
	Records    int
	ValidBytes int64 // end of the last complete record
	FileBytes  int64
	Torn       bool  // the file ends inside a record
	Err        error // format or I/O failure that stopped the scan
}

// Verify scans the data file at path record by record. A torn tail is
// reported, not returned as an error; ValidBytes then marks where the
// incomplete record starts, or is 0 when the header itself is incomplete.
func Verify(path string) Report {
	rep := Report{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.FileBytes = fi.Size()

	r, err := Open(path)
	if errors.Is(err, bin.ErrTruncated) {
		// Created but never flushed past the header.
		rep.Torn = true
		return rep
	}
	if err != nil {
		rep.Err = err
		return rep
	}
	defer r.Close()

	rep.ValidBytes = HeaderSize
	for {
		_, _, err := r.Next()
		switch {
		case err == nil:
			rep.Records++
			rep.ValidBytes = r.Offset()
			continue
		case errors.Is(err, io.EOF):
		case errors.Is(err, bin.ErrTruncated):
			rep.Torn = true
		default:
			rep.Err = err
		}
		return rep
	}
}
