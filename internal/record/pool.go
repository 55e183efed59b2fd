package record

import (
	"bytes"
	"sync"
)

type PoolConfig struct {
	MaxPoolSize int
}

var DefaultPoolConfig = PoolConfig{
	MaxPoolSize: 1024 * 64,
}

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer returns an empty buffer for serializing one envelope.
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Buffers that grew past MaxPoolSize are
// dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > DefaultPoolConfig.MaxPoolSize {
		return
	}
	bufferPool.Put(buf)
}
