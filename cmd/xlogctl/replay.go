package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"expstore/internal/experience"
	"expstore/internal/xlog"
)

type replayFlags struct {
	from, to int64
}

func newReplayCmd() *cobra.Command {
	var f replayFlags
	c := &cobra.Command{
		Use:     "replay",
		Short:   "Range-read experiences by timestamp and summarize them",
		Example: "xlogctl replay --dir /tmp/xlog --from 0 --to 9223372036854775807",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplay(cmd, f)
		},
	}
	c.Flags().Int64Var(&f.from, "from", 0, "first timestamp, inclusive")
	c.Flags().Int64Var(&f.to, "to", math.MaxInt64, "last timestamp, inclusive")
	return c
}

type replaySummary struct {
	records   int
	terminals int
	reward    float64
	episodes  map[int32]struct{}
	first     int64
	last      int64
}

func (s *replaySummary) add(x *experience.Experience) {
	if s.records == 0 {
		s.first = x.Ticks
	}
	s.records++
	s.last = x.Ticks
	s.reward += float64(x.Reward)
	if x.Terminal {
		s.terminals++
	}
	s.episodes[x.Episode] = struct{}{}
}

func runReplay(cmd *cobra.Command, f replayFlags) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	src, err := xlog.OpenSource(e.cfg.DataDir, e.cfg.Prefix, xlog.SourceOptions{Logger: e.log})
	if err != nil {
		return err
	}
	defer src.Close()

	start := time.Now()
	sum := replaySummary{episodes: make(map[int32]struct{})}
	it := src.ReadRange(f.from, f.to)
	defer it.Close()
	var x experience.Experience
	for it.Next(&x) {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		sum.add(&x)
	}
	if err := it.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chunks:     %d\n", len(src.Chunks()))
	fmt.Fprintf(out, "records:    %d\n", sum.records)
	fmt.Fprintf(out, "episodes:   %d\n", len(sum.episodes))
	fmt.Fprintf(out, "terminals:  %d\n", sum.terminals)
	fmt.Fprintf(out, "reward sum: %g\n", sum.reward)
	if sum.records > 0 {
		fmt.Fprintf(out, "ticks:      %d..%d\n", sum.first, sum.last)
	}
	fmt.Fprintf(out, "took:       %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
