package xlog

import (
	"fmt"

	"go.uber.org/zap"

	"expstore/internal/codec"
)

const (
	DefaultPrefix      = "exp"
	DefaultRotateBytes = 256 * 1024 * 1024
)

type Config struct {
	Dir         string
	Prefix      string      // file name prefix, default "exp"
	RotateBytes int64       // rotate once the data file reaches this size
	StartID     int64       // first record id
	Codec       codec.Codec // payload codec, default pass-through
	Logger      *zap.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.Dir == "" {
		return c, fmt.Errorf("%w: empty directory", ErrInvalidConfig)
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.RotateBytes == 0 {
		c.RotateBytes = DefaultRotateBytes
	}
	if c.RotateBytes < 0 {
		return c, fmt.Errorf("%w: rotate bytes %d", ErrInvalidConfig, c.RotateBytes)
	}
	if c.Codec == nil {
		c.Codec = codec.PassThrough{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c, nil
}
