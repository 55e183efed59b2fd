package record

import "fmt"

// Version is the only envelope layout this package reads or writes.
const Version uint16 = 1

// FIXED_SIZE is the part of an envelope that does not depend on payloads:
// version, id, ticks, episode, step, reward, terminal, obs kind, act kind,
// reserved.
const FIXED_SIZE = 2 + 8 + 8 + 4 + 4 + 4 + 1 + 1 + 1 + 1

// ObsKind tells a reader how to interpret an observation payload.
type ObsKind uint8

const (
	ObsUnknown   ObsKind = 0
	ObsVectorF32 ObsKind = 1 // little-endian float32s, len%4 == 0
	ObsText      ObsKind = 2 // UTF-8
)

func (k ObsKind) String() string {
	switch k {
	case ObsUnknown:
		return "unknown"
	case ObsVectorF32:
		return "vector-f32"
	case ObsText:
		return "text"
	default:
		return fmt.Sprintf("obs(%d)", uint8(k))
	}
}

// ActKind tells a reader how to interpret an action payload.
type ActKind uint8

const (
	ActUnknown    ActKind = 0
	ActDiscrete   ActKind = 1 // little-endian int32
	ActContinuous ActKind = 2 // little-endian float32s
)

func (k ActKind) String() string {
	switch k {
	case ActUnknown:
		return "unknown"
	case ActDiscrete:
		return "discrete"
	case ActContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("act(%d)", uint8(k))
	}
}

// Envelope is one experience record as it is stored in a chunk.
// Payload lengths are not checked against the declared kinds.
type Envelope struct {
	ID       int64 // assigned by the writer
	Ticks    int64
	Episode  int32
	Step     int32
	Reward   float32
	Terminal bool
	ObsKind  ObsKind
	ActKind  ActKind

	Obs     []byte
	Act     []byte
	NextObs []byte // nil when the record has no next observation
	Tags    []string
}

// HasNext reports whether the envelope carries a next observation.
func (e *Envelope) HasNext() bool {
	return e.NextObs != nil
}
