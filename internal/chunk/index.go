package chunk

import (
	"math"

	"expstore/pkg"
)

// EntryWidth is the on-disk size of one IndexEntry. There is no padding.
const EntryWidth = pkg.LenID + pkg.LenOffset + pkg.LenTicks + pkg.LenReward +
	pkg.LenFlags + pkg.LenChunkID + pkg.LenEpisode

// Byte offsets within an entry.
const (
	entryID      = 0
	entryOffset  = entryID + pkg.LenID
	entryTicks   = entryOffset + pkg.LenOffset
	entryReward  = entryTicks + pkg.LenTicks
	entryFlags   = entryReward + pkg.LenReward
	entryChunkID = entryFlags + pkg.LenFlags
	entryEpisode = entryChunkID + pkg.LenChunkID
)

// FlagTerminal is bit 0 of IndexEntry.Flags.
const FlagTerminal uint8 = 1 << 0

// IndexEntry mirrors one data-file record.
type IndexEntry struct {
	ID      int64
	Offset  int64 // position of the record's length prefix in the data file
	Ticks   int64
	Reward  float32
	Flags   uint8
	ChunkID uint8 // low 8 bits of the owning chunk id
	Episode uint16
}

func (e IndexEntry) Terminal() bool { return e.Flags&FlagTerminal != 0 }

// Pack writes e into dst, which must hold at least EntryWidth bytes.
func (e IndexEntry) Pack(dst []byte) {
	_ = dst[EntryWidth-1]
	pkg.Encod.PutUint64(dst[entryID:], uint64(e.ID))
	pkg.Encod.PutUint64(dst[entryOffset:], uint64(e.Offset))
	pkg.Encod.PutUint64(dst[entryTicks:], uint64(e.Ticks))
	pkg.Encod.PutUint32(dst[entryReward:], math.Float32bits(e.Reward))
	dst[entryFlags] = e.Flags
	dst[entryChunkID] = e.ChunkID
	pkg.Encod.PutUint16(dst[entryEpisode:], e.Episode)
}

// UnpackEntry decodes the entry at the start of src.
func UnpackEntry(src []byte) IndexEntry {
	_ = src[EntryWidth-1]
	return IndexEntry{
		ID:      int64(pkg.Encod.Uint64(src[entryID:])),
		Offset:  int64(pkg.Encod.Uint64(src[entryOffset:])),
		Ticks:   int64(pkg.Encod.Uint64(src[entryTicks:])),
		Reward:  math.Float32frombits(pkg.Encod.Uint32(src[entryReward:])),
		Flags:   src[entryFlags],
		ChunkID: src[entryChunkID],
		Episode: pkg.Encod.Uint16(src[entryEpisode:]),
	}
}

// SaturateEpisode clamps an episode number into the 16-bit index field.
// The second result reports whether clamping happened.
func SaturateEpisode(ep int32) (uint16, bool) {
	switch {
	case ep < 0:
		return 0, true
	case ep > math.MaxUint16:
		return math.MaxUint16, true
	default:
		return uint16(ep), false
	}
}
