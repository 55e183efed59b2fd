package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expstore/internal/xlog"
)

const crashExitCode = 3

type crashSimFlags struct {
	total     int
	killAfter int
	dim       int
}

func newCrashSimCmd() *cobra.Command {
	var f crashSimFlags
	c := &cobra.Command{
		Use:   "crashsim",
		Short: "Write experiences and exit abruptly without flushing",
		Long: "crashsim appends through the log sink and terminates the process after --kill-after " +
			"records with no flush or close, leaving a torn tail for verify and replay to recover from.",
		Example: "xlogctl crashsim --dir /tmp/xlog --total 10000 --kill-after 2500",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrashSim(cmd, f)
		},
	}
	c.Flags().IntVar(&f.total, "total", 10000, "records to write if not killed")
	c.Flags().IntVar(&f.killAfter, "kill-after", 2500, "exit after this many records")
	c.Flags().IntVar(&f.dim, "dim", 8, "observation vector length")
	return c
}

func runCrashSim(cmd *cobra.Command, f crashSimFlags) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	wc, err := e.cfg.Writer(e.log)
	if err != nil {
		return err
	}
	w, err := xlog.Open(wc)
	if err != nil {
		return err
	}
	sink := xlog.NewSink(w, xlog.SinkOptions{FlushEvery: 128, Tags: []string{runTag()}})

	ctx := cmd.Context()
	base := time.Now().UnixNano()
	for i := 0; i < f.total; i++ {
		if i == f.killAfter {
			e.log.Warn("simulating crash", zap.Int("written", i), zap.String("chunk", w.DataPath()))
			_ = e.log.Sync()
			fmt.Fprintf(cmd.ErrOrStderr(), "crash after %d records\n", i)
			os.Exit(crashExitCode)
		}
		if err := sink.Append(ctx, syntheticExperience(i, f.dim, base)); err != nil {
			return fmt.Errorf("append %d: %w", i, err)
		}
	}
	return sink.Close()
}
