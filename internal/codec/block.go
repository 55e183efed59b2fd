package codec

import (
	"bytes"
	"fmt"

	"expstore/internal/bin"
)

// Compressed payloads are [uncompressed length varint][compressed bytes] so
// Decode never needs outside bookkeeping.

// maxDecodedLen bounds the uncompressed length a frame may claim.
const maxDecodedLen = bin.MaxBlockLen

func splitBlock(src []byte) (int, []byte, error) {
	r := bytes.NewReader(src)
	n, err := bin.ReadUvarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: length prefix: %v", ErrCorruptPayload, err)
	}
	if n > maxDecodedLen {
		return 0, nil, fmt.Errorf("%w: claims %d bytes", ErrCorruptPayload, n)
	}
	return int(n), src[len(src)-r.Len():], nil
}
