package xlog

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"expstore/internal/bin"
	"expstore/internal/chunk"
	"expstore/internal/codec"
	"expstore/internal/experience"
	"expstore/internal/record"
	"expstore/internal/resource"
)

const DefaultCacheSize = 16

type SourceOptions struct {
	CacheSize int         // open chunk pairs kept, default 16
	Codec     codec.Codec // forces a payload codec; nil reads it from each header
	Logger    *zap.Logger
}

// Source reads experiences back from every chunk of one prefix.
type Source struct {
	dir    string
	prefix string
	opts   SourceOptions
	log    *zap.Logger
	cache  *resource.ChunkCache

	mu  sync.RWMutex
	ids []uint32
}

var _ experience.Source = (*Source)(nil)

func OpenSource(dir, prefix string, opts SourceOptions) (*Source, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Source{
		dir:    dir,
		prefix: prefix,
		opts:   opts,
		log:    opts.Logger.With(zap.String("prefix", prefix)),
		cache:  resource.NewChunkCache(opts.CacheSize),
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh rescans the directory for chunks created since the last scan.
// The previously newest chunk is reopened on next use so entries flushed to
// it since it was mapped become visible. Iterators already reading it keep
// their view.
func (s *Source) Refresh() error {
	ids, err := chunk.ScanIDs(s.dir, s.prefix)
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.dir, err)
	}
	s.mu.Lock()
	prev := s.ids
	s.ids = ids
	s.mu.Unlock()

	if len(prev) > 0 {
		s.cache.Invalidate(prev[len(prev)-1])
	}
	return nil
}

// Chunks lists the known chunk ids in increasing order.
func (s *Source) Chunks() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// ReadRange iterates, in chunk then index order, over the experiences whose
// Ticks lie in [fromTicks, toTicks]. Records of kinds other than float32
// vector observations with discrete actions are skipped.
func (s *Source) ReadRange(fromTicks, toTicks int64) experience.Iterator {
	return &RangeIterator{
		src:  s,
		from: fromTicks,
		to:   toTicks,
		ids:  s.Chunks(),
	}
}

func (s *Source) Close() error {
	return s.cache.Close()
}

func (s *Source) acquire(id uint32) (*resource.Chunk, error) {
	return s.cache.GetOrLoad(id, func() (*resource.Chunk, error) {
		data, err := chunk.OpenWith(chunk.DataPath(s.dir, s.prefix, id), s.opts.Codec)
		if err != nil {
			return nil, err
		}
		index, err := chunk.OpenIndex(chunk.IndexPath(s.dir, s.prefix, id))
		if err != nil {
			data.Close()
			return nil, err
		}
		return &resource.Chunk{ID: id, Data: data, Index: index}, nil
	})
}

// RangeIterator is the iterator returned by Source.ReadRange.
type RangeIterator struct {
	src      *Source
	from, to int64
	ids      []uint32

	next int // position in ids of the chunk to open next
	cur  *resource.Chunk
	pos  int // next index ordinal within cur

	err    error
	closed bool
}

func (it *RangeIterator) Next(e *experience.Experience) bool {
	if it.closed || it.err != nil || it.from > it.to {
		return false
	}

	for {
		if it.cur == nil {
			if it.next >= len(it.ids) {
				return false
			}
			c, err := it.src.acquire(it.ids[it.next])
			if errors.Is(err, bin.ErrTruncated) {
				it.src.log.Warn("chunk header incomplete, skipping chunk",
					zap.Uint32("chunk", it.ids[it.next]), zap.Error(err))
				it.next++
				continue
			}
			if err != nil {
				it.err = fmt.Errorf("open chunk %d: %w", it.ids[it.next], err)
				return false
			}
			it.next++
			it.cur, it.pos = c, 0
		}

		if it.pos >= it.cur.Index.Count() {
			it.release()
			continue
		}

		entry, err := it.cur.Index.At(it.pos)
		if err != nil {
			it.err = err
			return false
		}
		it.pos++
		if entry.Ticks < it.from || entry.Ticks > it.to {
			continue
		}

		env, err := it.cur.Data.ReadAt(entry.Offset)
		if errors.Is(err, bin.ErrTruncated) || errors.Is(err, chunk.ErrOffsetOutOfRange) {
			// Torn tail, or an entry whose record is not flushed yet.
			it.src.log.Warn("unreadable record, skipping rest of chunk",
				zap.Uint32("chunk", it.cur.ID), zap.Int64("offset", entry.Offset), zap.Error(err))
			it.release()
			continue
		}
		if err != nil {
			it.err = fmt.Errorf("chunk %d: %w", it.cur.ID, err)
			return false
		}
		if err := checkEntry(it.cur.ID, entry, env); err != nil {
			it.err = err
			return false
		}

		ok, err := fromEnvelope(env, e)
		if err != nil {
			it.err = fmt.Errorf("chunk %d record %d: %w", it.cur.ID, env.ID, err)
			return false
		}
		if ok {
			return true
		}
	}
}

func (it *RangeIterator) Err() error { return it.err }

func (it *RangeIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.cur != nil {
		it.release()
	}
	return nil
}

func (it *RangeIterator) release() {
	it.src.cache.Release(it.cur)
	it.cur = nil
}

func checkEntry(id uint32, entry chunk.IndexEntry, env *record.Envelope) error {
	if entry.ChunkID != uint8(id) || entry.ID != env.ID || entry.Ticks != env.Ticks {
		return fmt.Errorf("%w: chunk %d offset %d: entry id=%d ticks=%d tag=%d, record id=%d ticks=%d",
			ErrIndexMismatch, id, entry.Offset, entry.ID, entry.Ticks, entry.ChunkID, env.ID, env.Ticks)
	}
	return nil
}

// fromEnvelope fills e from env. It reports false for kinds it does not
// decode.
func fromEnvelope(env *record.Envelope, e *experience.Experience) (bool, error) {
	if env.ObsKind != record.ObsVectorF32 || env.ActKind != record.ActDiscrete {
		return false, nil
	}

	obs, err := experience.DecodeF32(env.Obs)
	if err != nil {
		return false, err
	}
	act, err := experience.DecodeDiscrete(env.Act)
	if err != nil {
		return false, err
	}
	var next []float32
	if env.HasNext() {
		if next, err = experience.DecodeF32(env.NextObs); err != nil {
			return false, err
		}
	}

	*e = experience.Experience{
		Obs:      obs,
		Act:      act,
		Reward:   env.Reward,
		NextObs:  next,
		Terminal: env.Terminal,
		Ticks:    env.Ticks,
		Episode:  env.Episode,
		Step:     env.Step,
	}
	return true, nil
}
