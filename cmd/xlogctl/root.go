package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"expstore/internal/config"
	"expstore/internal/ingest"
	"expstore/internal/logging"
	"expstore/internal/xlog"
)

type globalFlags struct {
	configPath string
	dir        string
	prefix     string
	codec      string
	logLevel   string
}

var global globalFlags

func newRootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:           "xlogctl",
		Short:         "Write, inspect and replay chunked experience logs",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	pf := c.PersistentFlags()
	pf.StringVarP(&global.configPath, "config", "c", "", "path to a YAML configuration file")
	pf.StringVar(&global.dir, "dir", "", "log directory (overrides data_dir)")
	pf.StringVar(&global.prefix, "prefix", "", "chunk file prefix (overrides prefix)")
	pf.StringVar(&global.codec, "codec", "", "payload codec: none, snappy or zstd (overrides codec)")
	pf.StringVar(&global.logLevel, "log-level", "", "log level (overrides log_level)")

	c.AddCommand(
		newRoundTripCmd(),
		newCrashSimCmd(),
		newVerifyCmd(),
		newDumpCmd(),
		newReplayCmd(),
		newBenchCmd(),
	)
	return c
}

// env is what every subcommand needs from the configuration.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.DataDir = global.dir
	}
	if flags.Changed("prefix") {
		cfg.Prefix = global.prefix
	}
	if flags.Changed("codec") {
		cfg.Codec = global.codec
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = global.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) close() {
	_ = e.log.Sync()
}

// runTag labels every envelope written by one process.
func runTag() string {
	return "run:" + uuid.NewString()
}

// pipeline is a writer behind an xlog sink behind a buffered sink.
type pipeline struct {
	writer *xlog.Writer
	sink   *ingest.BufferedSink
}

func (e *env) openPipeline(tags []string) (*pipeline, error) {
	wc, err := e.cfg.Writer(e.log)
	if err != nil {
		return nil, err
	}
	opts, err := e.cfg.Ingest(e.log)
	if err != nil {
		return nil, err
	}

	w, err := xlog.Open(wc)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	s, err := ingest.New(xlog.NewSink(w, xlog.SinkOptions{FlushEvery: e.cfg.FlushEvery, Tags: tags}), opts)
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}
	return &pipeline{writer: w, sink: s}, nil
}
