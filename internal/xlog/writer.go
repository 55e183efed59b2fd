// Package xlog is the chunked experience log: a rotating single writer, a
// range-read Source spanning every chunk of a prefix, and the adapter that
// turns experiences into envelopes.
package xlog

import (
	"fmt"
	"math"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"expstore/internal/chunk"
	"expstore/internal/record"
)

// Writer appends envelopes to the active chunk pair of a directory and
// rotates to a new pair once the data file reaches Config.RotateBytes.
//
// A Writer has exactly one owner. It does no locking; callers feeding it
// from several goroutines must funnel through a single consumer.
type Writer struct {
	cfg Config
	log *zap.Logger

	chunkID uint32
	data    *chunk.Log
	index   *chunk.IndexLog

	nextID        int64
	pendingRotate bool
	closed        bool
	failed        error // a half-written record left the pair inconsistent
	deferredErr   error // close failures of rotated-out chunks

	episodeClamped bool
}

// Open starts a writer on a fresh chunk numbered one past the highest chunk
// of cfg.Prefix already in cfg.Dir.
func Open(cfg Config) (*Writer, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	ids, err := chunk.ScanIDs(cfg.Dir, cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cfg.Dir, err)
	}
	var first uint32
	if len(ids) > 0 {
		last := ids[len(ids)-1]
		if last == math.MaxUint32 {
			return nil, ErrChunkIDsExhausted
		}
		first = last + 1
	}

	w := &Writer{
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("prefix", cfg.Prefix)),
		nextID: cfg.StartID,
	}
	if w.data, w.index, err = w.create(first); err != nil {
		return nil, err
	}
	w.chunkID = first
	w.log.Info("chunk opened",
		zap.Uint32("chunk", first),
		zap.String("path", w.data.Path()),
		zap.String("codec", cfg.Codec.Name()),
		zap.Int64("start_id", cfg.StartID))
	return w, nil
}

// create opens both files of chunk id. Neither may exist yet.
func (w *Writer) create(id uint32) (*chunk.Log, *chunk.IndexLog, error) {
	data, err := chunk.CreateLog(chunk.DataPath(w.cfg.Dir, w.cfg.Prefix, id), w.cfg.Codec.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("create data file: %w", err)
	}
	index, err := chunk.CreateIndexLog(chunk.IndexPath(w.cfg.Dir, w.cfg.Prefix, id))
	if err != nil {
		cerr := data.Close()
		// Only the data file was created here; the index path belongs to
		// someone else.
		rerr := os.Remove(data.Path())
		return nil, nil, multierr.Combine(fmt.Errorf("create index file: %w", err), cerr, rerr)
	}
	return data, index, nil
}

// Append assigns the next id to a copy of e, writes it and its index entry,
// and returns the id. e.ID is ignored. An append that fails assigns no id.
func (w *Writer) Append(e *record.Envelope) (int64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if w.failed != nil {
		return 0, w.failed
	}
	if w.pendingRotate {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate before append: %w", err)
		}
	}

	env := *e
	env.ID = w.nextID

	buf := record.GetBuffer()
	defer record.PutBuffer(buf)
	if err := env.MarshalTo(buf); err != nil {
		return 0, fmt.Errorf("marshal record %d: %w", env.ID, err)
	}
	payload, err := w.cfg.Codec.Encode(buf.Bytes())
	if err != nil {
		return 0, fmt.Errorf("encode record %d: %w", env.ID, err)
	}

	off, err := w.data.Append(payload)
	if err != nil {
		w.failed = fmt.Errorf("append record %d to %s: %w", env.ID, w.data.Path(), err)
		return 0, w.failed
	}
	if err := w.index.Append(w.entry(&env, off)); err != nil {
		w.failed = fmt.Errorf("index record %d in %s: %w", env.ID, w.index.Path(), err)
		return 0, w.failed
	}
	w.nextID++

	if w.data.Size() >= w.cfg.RotateBytes {
		if err := w.rotate(); err != nil {
			// The record is durable in the old chunk; the next Append retries.
			w.pendingRotate = true
			w.log.Warn("rotation failed, keeping current chunk",
				zap.Uint32("chunk", w.chunkID), zap.Error(err))
		}
	}
	return env.ID, nil
}

func (w *Writer) entry(e *record.Envelope, off int64) chunk.IndexEntry {
	ep, clamped := chunk.SaturateEpisode(e.Episode)
	if clamped && !w.episodeClamped {
		w.episodeClamped = true
		w.log.Warn("episode does not fit the index, saturating",
			zap.Int32("episode", e.Episode), zap.Uint16("stored", ep), zap.Int64("id", e.ID))
	}

	var flags uint8
	if e.Terminal {
		flags |= chunk.FlagTerminal
	}
	return chunk.IndexEntry{
		ID:      e.ID,
		Offset:  off,
		Ticks:   e.Ticks,
		Reward:  e.Reward,
		Flags:   flags,
		ChunkID: uint8(w.chunkID),
		Episode: ep,
	}
}

// rotate opens the next chunk pair and only then closes the current one, so
// a failure leaves the current pair active.
func (w *Writer) rotate() error {
	if w.chunkID == math.MaxUint32 {
		return ErrChunkIDsExhausted
	}
	next := w.chunkID + 1

	data, index, err := w.create(next)
	if err != nil {
		return err
	}

	oldID, oldBytes := w.chunkID, w.data.Size()
	if err := multierr.Append(w.data.Close(), w.index.Close()); err != nil {
		w.log.Error("closing rotated chunk", zap.Uint32("chunk", oldID), zap.Error(err))
		w.deferredErr = multierr.Append(w.deferredErr, fmt.Errorf("close chunk %d: %w", oldID, err))
	}

	w.data, w.index, w.chunkID = data, index, next
	w.pendingRotate = false
	w.log.Info("chunk rotated",
		zap.Uint32("from", oldID),
		zap.Uint32("chunk", next),
		zap.Int64("bytes", oldBytes),
		zap.String("path", data.Path()))
	return nil
}

// Flush writes buffered bytes of the active pair and syncs both files, data
// first so a flushed index entry never points past flushed data.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.data.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.data.Path(), err)
	}
	if err := w.index.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.index.Path(), err)
	}
	return nil
}

// Close hands buffered bytes to the OS and closes both files. It does not
// sync; call Flush first when durability matters.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return multierr.Combine(w.data.Close(), w.index.Close(), w.deferredErr)
}

// ChunkID is the id of the active chunk.
func (w *Writer) ChunkID() uint32 { return w.chunkID }

// NextID is the id the next successful Append will assign.
func (w *Writer) NextID() int64 { return w.nextID }

func (w *Writer) DataPath() string { return w.data.Path() }

func (w *Writer) IndexPath() string { return w.index.Path() }

func (w *Writer) Dir() string { return w.cfg.Dir }

func (w *Writer) Prefix() string { return w.cfg.Prefix }
