package pkg

import "encoding/binary"

const (
	// Size lengths (in bytes)
	LenID      = 8
	LenOffset  = 8
	LenTicks   = 8
	LenReward  = 4
	LenFlags   = 1
	LenChunkID = 1
	LenEpisode = 2
	LenVersion = 2
	LenMagic   = 4
	LenInt32   = 4
	LenInt64   = 8
	LenFloat32 = 4
)

// Encoding alias (every xlog layout is little-endian)
var Encod = binary.LittleEndian
