package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expstore/internal/bin"
)

func allCodecs() []Codec {
	return []Codec{PassThrough{}, Snappy{}, NewZstd()}
}

func TestCodec_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":        {},
		"short":        []byte("hello"),
		"repetitive":   bytes.Repeat([]byte("obs:0.25;"), 4096),
		"binary noise": {0x00, 0xFF, 0x10, 0x80, 0x7F, 0x01, 0xFE},
	}

	for _, c := range allCodecs() {
		for name, src := range payloads {
			t.Run(c.Name()+"/"+name, func(t *testing.T) {
				enc, err := c.Encode(src)
				require.NoError(t, err)

				dec, err := c.Decode(enc)
				require.NoError(t, err)
				assert.Equal(t, len(src), len(dec))
				assert.True(t, bytes.Equal(src, dec))
			})
		}
	}
}

func TestCodec_CompressesRepetitiveData(t *testing.T) {
	src := bytes.Repeat([]byte{1, 2, 3, 4}, 16*1024)
	for _, c := range []Codec{Snappy{}, NewZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			enc, err := c.Encode(src)
			require.NoError(t, err)
			assert.Less(t, len(enc), len(src)/4)
		})
	}
}

func TestCodec_LengthPrefix(t *testing.T) {
	src := bytes.Repeat([]byte("x"), 300)
	for _, c := range []Codec{Snappy{}, NewZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			enc, err := c.Encode(src)
			require.NoError(t, err)
			n, err := bin.ReadUvarint(bytes.NewReader(enc))
			require.NoError(t, err)
			assert.Equal(t, uint64(300), n)
		})
	}
}

func TestCodec_LengthMismatch(t *testing.T) {
	src := []byte("payload that will be mislabelled")
	for _, c := range []Codec{Snappy{}, NewZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			enc, err := c.Encode(src)
			require.NoError(t, err)

			// Rewrite the prefix to claim one more byte than the block holds.
			body := enc[bin.UvarintSize(uint64(len(src))):]
			forged := bin.AppendUvarint(nil, uint64(len(src)+1))
			forged = append(forged, body...)

			_, err = c.Decode(forged)
			assert.ErrorIs(t, err, ErrCorruptPayload)
		})
	}
}

func TestCodec_CorruptInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "unterminated prefix", data: []byte{0x80, 0x80}},
		{name: "oversized claim", data: bin.AppendUvarint(nil, maxDecodedLen+1)},
		{name: "garbage body", data: append(bin.AppendUvarint(nil, 16), 0xDE, 0xAD, 0xBE, 0xEF)},
	}

	for _, c := range []Codec{Snappy{}, NewZstd()} {
		for _, tt := range tests {
			t.Run(c.Name()+"/"+tt.name, func(t *testing.T) {
				_, err := c.Decode(tt.data)
				assert.ErrorIs(t, err, ErrCorruptPayload)
			})
		}
	}
}

func TestForFlags(t *testing.T) {
	for _, c := range allCodecs() {
		got, err := ForFlags(c.Flags())
		require.NoError(t, err)
		assert.Equal(t, c.Name(), got.Name())
	}

	_, err := ForFlags(Flags(0x00FF))
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestByName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Flags
	}{
		{name: "default", input: "", want: FlagNone},
		{name: "none", input: "none", want: FlagNone},
		{name: "passthrough alias", input: "PassThrough", want: FlagNone},
		{name: "snappy", input: "snappy", want: FlagSnappy},
		{name: "zstd upper", input: "ZSTD", want: FlagZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ByName(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Flags())
		})
	}

	_, err := ByName("lz4")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
