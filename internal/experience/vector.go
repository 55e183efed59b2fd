package experience

import (
	"errors"
	"fmt"
	"math"

	"expstore/pkg"
)

var ErrBadPayload = errors.New("experience: payload length does not fit its kind")

// EncodeF32 packs v as consecutive little-endian float32 values.
func EncodeF32(v []float32) []byte {
	out := make([]byte, len(v)*pkg.LenFloat32)
	for i, f := range v {
		pkg.Encod.PutUint32(out[i*pkg.LenFloat32:], math.Float32bits(f))
	}
	return out
}

// DecodeF32 is the inverse of EncodeF32.
func DecodeF32(b []byte) ([]float32, error) {
	if len(b)%pkg.LenFloat32 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a float32 vector", ErrBadPayload, len(b))
	}
	out := make([]float32, len(b)/pkg.LenFloat32)
	for i := range out {
		out[i] = math.Float32frombits(pkg.Encod.Uint32(b[i*pkg.LenFloat32:]))
	}
	return out, nil
}

func EncodeDiscrete(a int32) []byte {
	out := make([]byte, pkg.LenInt32)
	pkg.Encod.PutUint32(out, uint32(a))
	return out
}

func DecodeDiscrete(b []byte) (int32, error) {
	if len(b) != pkg.LenInt32 {
		return 0, fmt.Errorf("%w: %d bytes is not a discrete action", ErrBadPayload, len(b))
	}
	return int32(pkg.Encod.Uint32(b)), nil
}
