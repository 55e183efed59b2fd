package record

import (
	"math"

	"expstore/pkg"
)

// fixedWriter and fixedReader walk a slice whose length the caller has
// already checked.
type fixedWriter struct {
	buf []byte
	off int
}

func (w *fixedWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *fixedWriter) u16(v uint16) {
	pkg.Encod.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *fixedWriter) u32(v uint32) {
	pkg.Encod.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *fixedWriter) u64(v uint64) {
	pkg.Encod.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *fixedWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

type fixedReader struct {
	buf []byte
	off int
}

func (r *fixedReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *fixedReader) u16() uint16 {
	v := pkg.Encod.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *fixedReader) u32() uint32 {
	v := pkg.Encod.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *fixedReader) u64() uint64 {
	v := pkg.Encod.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *fixedReader) f32() float32 {
	return math.Float32frombits(r.u32())
}
