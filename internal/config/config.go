// Package config loads the storage engine settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"expstore/internal/codec"
	"expstore/internal/ingest"
	"expstore/internal/xlog"
)

var ErrInvalid = errors.New("config: invalid value")

// ByteSize is a byte count written as a bytefmt string such as "64K" or
// "256MB". Plain integers are taken as bytes.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: byte size must be a scalar, line %d", ErrInvalid, node.Line)
	}
	n, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d", int64(b))
	}
	return bytefmt.ByteSize(uint64(b))
}

func ParseByteSize(s string) (ByteSize, error) {
	if plain, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ByteSize(plain), nil
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: byte size %q: %v", ErrInvalid, s, err)
	}
	return ByteSize(n), nil
}

type Config struct {
	DataDir         string        `yaml:"data_dir"`
	Prefix          string        `yaml:"prefix"`
	RotateBytes     ByteSize      `yaml:"rotate_bytes"`
	StartID         int64         `yaml:"start_id"`
	Codec           string        `yaml:"codec"`
	FlushEvery      int           `yaml:"flush_every"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	Overflow        string        `yaml:"overflow"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		DataDir:         "data",
		Prefix:          xlog.DefaultPrefix,
		RotateBytes:     xlog.DefaultRotateBytes,
		StartID:         0,
		Codec:           "none",
		FlushEvery:      xlog.DefaultFlushEvery,
		QueueCapacity:   ingest.DefaultCapacity,
		Overflow:        ingest.Block.String(),
		ShutdownTimeout: ingest.DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	}
	if c.Prefix == "" {
		return fmt.Errorf("%w: prefix is empty", ErrInvalid)
	}
	if c.RotateBytes <= 0 {
		return fmt.Errorf("%w: rotate_bytes must be positive, got %d", ErrInvalid, c.RotateBytes)
	}
	if c.FlushEvery <= 0 {
		return fmt.Errorf("%w: flush_every must be positive, got %d", ErrInvalid, c.FlushEvery)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue_capacity must be positive, got %d", ErrInvalid, c.QueueCapacity)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive, got %s", ErrInvalid, c.ShutdownTimeout)
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := ingest.ParseOverflow(c.Overflow); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	return nil
}

// Writer builds the chunk log writer settings.
func (c *Config) Writer(logger *zap.Logger) (xlog.Config, error) {
	pc, err := codec.ByName(c.Codec)
	if err != nil {
		return xlog.Config{}, err
	}
	return xlog.Config{
		Dir:         c.DataDir,
		Prefix:      c.Prefix,
		RotateBytes: int64(c.RotateBytes),
		StartID:     c.StartID,
		Codec:       pc,
		Logger:      logger,
	}, nil
}

// Ingest builds the buffered sink options.
func (c *Config) Ingest(logger *zap.Logger) (ingest.Options, error) {
	policy, err := ingest.ParseOverflow(c.Overflow)
	if err != nil {
		return ingest.Options{}, err
	}
	return ingest.Options{
		Capacity:        c.QueueCapacity,
		Overflow:        policy,
		ShutdownTimeout: c.ShutdownTimeout,
		Logger:          logger,
	}, nil
}
