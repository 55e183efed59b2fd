package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expstore/internal/config"
	"expstore/internal/experience"
	"expstore/internal/xlog"
)

type roundTripFlags struct {
	records int
	dim     int
	rotate  string
}

func newRoundTripCmd() *cobra.Command {
	var f roundTripFlags
	c := &cobra.Command{
		Use:     "roundtrip",
		Short:   "Write synthetic experiences through the buffered sink and read them back",
		Example: "xlogctl roundtrip --dir /tmp/xlog -n 1000 --dim 8 --rotate 64K",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoundTrip(cmd, f)
		},
	}
	c.Flags().IntVarP(&f.records, "records", "n", 1000, "number of experiences to write")
	c.Flags().IntVar(&f.dim, "dim", 8, "observation vector length")
	c.Flags().StringVar(&f.rotate, "rotate", "64K", "rotation threshold")
	return c
}

func runRoundTrip(cmd *cobra.Command, f roundTripFlags) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	rotate, err := config.ParseByteSize(f.rotate)
	if err != nil {
		return err
	}
	e.cfg.RotateBytes = rotate
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	p, err := e.openPipeline([]string{runTag()})
	if err != nil {
		return err
	}
	firstChunk := p.writer.ChunkID()

	ctx := cmd.Context()
	start := time.Now()
	base := start.UnixNano()
	var last *experience.Experience
	for i := 0; i < f.records; i++ {
		x := syntheticExperience(i, f.dim, base)
		if err := p.sink.Append(ctx, x); err != nil {
			_ = p.sink.Close()
			return fmt.Errorf("append %d: %w", i, err)
		}
		last = x
	}
	if err := p.sink.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	lastChunk := p.writer.ChunkID()
	st := p.sink.Stats()
	e.log.Info("roundtrip written",
		zap.Int64("written", st.Written),
		zap.Int64("dropped", st.Dropped),
		zap.Duration("took", time.Since(start)))

	entries, lastEntry, err := scanIndexes(e.cfg.DataDir, e.cfg.Prefix, firstChunk, lastChunk)
	if err != nil {
		return err
	}

	src, err := xlog.OpenSource(e.cfg.DataDir, e.cfg.Prefix, xlog.SourceOptions{Logger: e.log})
	if err != nil {
		return err
	}
	defer src.Close()
	it := src.ReadRange(base, math.MaxInt64)
	defer it.Close()
	replayed := 0
	var x experience.Experience
	for it.Next(&x) {
		replayed++
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records written:   %d (dropped %d)\n", st.Written, st.Dropped)
	fmt.Fprintf(out, "index entries:     %d\n", entries)
	fmt.Fprintf(out, "replayed:          %d\n", replayed)
	fmt.Fprintf(out, "chunks:            %d (%05d..%05d)\n", lastChunk-firstChunk+1, firstChunk, lastChunk)
	if entries > 0 {
		fmt.Fprintf(out, "last entry:        id=%d episode=%d terminal=%t\n",
			lastEntry.ID, lastEntry.Episode, lastEntry.Terminal())
	}

	if int64(entries) != st.Written || replayed != entries {
		return fmt.Errorf("roundtrip mismatch: written %d, indexed %d, replayed %d", st.Written, entries, replayed)
	}
	if last != nil && entries > 0 && (lastEntry.Terminal() != last.Terminal || int32(lastEntry.Episode) != last.Episode) {
		return fmt.Errorf("last index entry %+v does not match last experience", lastEntry)
	}
	return nil
}

// syntheticExperience is step i of episode 1 with a random observation.
func syntheticExperience(i, dim int, base int64) *experience.Experience {
	obs := make([]float32, dim)
	next := make([]float32, dim)
	for j := range obs {
		obs[j] = rand.Float32()
		next[j] = rand.Float32()
	}
	return &experience.Experience{
		Obs:      obs,
		Act:      int32(rand.Intn(4)),
		Reward:   0.1,
		NextObs:  next,
		Terminal: i%10 == 9,
		Ticks:    base + int64(i),
		Episode:  1,
		Step:     int32(i),
	}
}
