package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"expstore/internal/bin"
)

var zstdCoders = sync.OnceValues(func() (*zstd.Encoder, *zstd.Decoder) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1), zstd.WithZeroFrames(true))
	if err != nil {
		panic(fmt.Sprintf("codec: zstd encoder: %v", err))
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecodedLen))
	if err != nil {
		panic(fmt.Sprintf("codec: zstd decoder: %v", err))
	}
	return enc, dec
})

// Zstd compresses each envelope as an independent zstd frame. EncodeAll and
// DecodeAll are safe for concurrent use, so one encoder and decoder pair is
// shared by every Zstd value.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstd() *Zstd {
	enc, dec := zstdCoders()
	return &Zstd{enc: enc, dec: dec}
}

func (*Zstd) Name() string { return "zstd" }

func (*Zstd) Flags() Flags { return FlagZstd }

func (z *Zstd) Encode(src []byte) ([]byte, error) {
	dst := make([]byte, 0, bin.UvarintSize(uint64(len(src)))+len(src)/2+64)
	dst = bin.AppendUvarint(dst, uint64(len(src)))
	return z.enc.EncodeAll(src, dst), nil
}

func (z *Zstd) Decode(src []byte) ([]byte, error) {
	want, body, err := splitBlock(src)
	if err != nil {
		return nil, err
	}
	out, err := z.dec.DecodeAll(body, make([]byte, 0, want))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: length prefix %d, frame holds %d", ErrCorruptPayload, want, len(out))
	}
	return out, nil
}
