package record

import (
	"bytes"
	"errors"
	"fmt"

	"expstore/internal/bin"
)

var (
	ErrUnknownVersion = errors.New("record: unknown envelope version")
	ErrCorrupt        = errors.New("record: corrupt envelope")
)

// Size returns the exact number of bytes Marshal produces for e.
func (e *Envelope) Size() int {
	n := FIXED_SIZE
	n += blockSize(len(e.Obs))
	n += blockSize(len(e.Act))
	n++ // has-next flag
	if e.NextObs != nil {
		n += blockSize(len(e.NextObs))
	}
	n += bin.UvarintSize(uint64(len(e.Tags)))
	for _, t := range e.Tags {
		n += blockSize(len(t))
	}
	return n
}

func blockSize(n int) int {
	return bin.UvarintSize(uint64(n)) + n
}

/**
 * Layout (little-endian):
 * [Version u16]
 * [ID i64][Ticks i64][Episode i32][Step i32][Reward f32][Terminal u8][ObsKind u8][ActKind u8][Reserved u8]
 * [Obs block][Act block][HasNext u8][NextObs block if HasNext][Tags string array]
 */
func (e *Envelope) MarshalTo(buf *bytes.Buffer) error {
	buf.Grow(e.Size())

	var fixed [FIXED_SIZE]byte
	putFixed(fixed[:], e)
	buf.Write(fixed[:])

	if err := bin.WriteBytes(buf, e.Obs); err != nil {
		return err
	}
	if err := bin.WriteBytes(buf, e.Act); err != nil {
		return err
	}
	if err := bin.WriteBool(buf, e.NextObs != nil); err != nil {
		return err
	}
	if e.NextObs != nil {
		if err := bin.WriteBytes(buf, e.NextObs); err != nil {
			return err
		}
	}
	return bin.WriteStrings(buf, e.Tags)
}

// Marshal serializes e into a freshly allocated slice.
func (e *Envelope) Marshal() []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail
	_ = e.MarshalTo(&buf)
	return buf.Bytes()
}

func putFixed(dst []byte, e *Envelope) {
	var w fixedWriter
	w.buf = dst
	w.u16(Version)
	w.u64(uint64(e.ID))
	w.u64(uint64(e.Ticks))
	w.u32(uint32(e.Episode))
	w.u32(uint32(e.Step))
	w.f32(e.Reward)
	if e.Terminal {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u8(uint8(e.ObsKind))
	w.u8(uint8(e.ActKind))
	w.u8(0) // reserved
}

/**
 * Unmarshals src into e. Every field is read in the fixed order; the version
 * is checked first and trailing bytes after the tag array are rejected.
 */
func UnmarshalInto(src []byte, e *Envelope) error {
	if len(src) < FIXED_SIZE {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrCorrupt, len(src), FIXED_SIZE)
	}

	r := fixedReader{buf: src}
	if v := r.u16(); v != Version {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	e.ID = int64(r.u64())
	e.Ticks = int64(r.u64())
	e.Episode = int32(r.u32())
	e.Step = int32(r.u32())
	e.Reward = r.f32()
	e.Terminal = r.u8() != 0
	e.ObsKind = ObsKind(r.u8())
	e.ActKind = ActKind(r.u8())
	r.u8() // reserved

	body := bytes.NewReader(src[FIXED_SIZE:])
	var err error
	if e.Obs, err = bin.ReadBytes(body); err != nil {
		return corrupt("observation", err)
	}
	if e.Act, err = bin.ReadBytes(body); err != nil {
		return corrupt("action", err)
	}
	hasNext, err := bin.ReadBool(body)
	if err != nil {
		return corrupt("next flag", err)
	}
	e.NextObs = nil
	if hasNext {
		if e.NextObs, err = bin.ReadBytes(body); err != nil {
			return corrupt("next observation", err)
		}
	}
	if e.Tags, err = bin.ReadStrings(body); err != nil {
		return corrupt("tags", err)
	}
	if body.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, body.Len())
	}
	return nil
}

// Unmarshal decodes a new envelope from src.
func Unmarshal(src []byte) (*Envelope, error) {
	var e Envelope
	if err := UnmarshalInto(src, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// A complete frame that fails to decode is corruption, not a torn write, so
// the cause is formatted rather than wrapped.
func corrupt(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, field, err)
}
