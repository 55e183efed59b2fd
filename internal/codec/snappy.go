package codec

import (
	"fmt"

	"github.com/klauspost/compress/snappy"

	"expstore/internal/bin"
)

// Snappy block-compresses each envelope.
type Snappy struct{}

func (Snappy) Name() string { return "snappy" }

func (Snappy) Flags() Flags { return FlagSnappy }

func (Snappy) Encode(src []byte) ([]byte, error) {
	n := bin.UvarintSize(uint64(len(src)))
	dst := make([]byte, n+snappy.MaxEncodedLen(len(src)))
	bin.AppendUvarint(dst[:0], uint64(len(src)))
	comp := snappy.Encode(dst[n:], src)
	return dst[:n+len(comp)], nil
}

func (Snappy) Decode(src []byte) ([]byte, error) {
	want, body, err := splitBlock(src)
	if err != nil {
		return nil, err
	}
	got, err := snappy.DecodedLen(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if got != want {
		return nil, fmt.Errorf("%w: length prefix %d, block holds %d", ErrCorruptPayload, want, got)
	}
	out, err := snappy.Decode(make([]byte, want), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return out, nil
}
