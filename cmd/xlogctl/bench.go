package main

import (
	"fmt"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"expstore/internal/ingest"
)

type benchFlags struct {
	producers int
	records   int
	dim       int
	capacity  int
	overflow  string
}

func newBenchCmd() *cobra.Command {
	var f benchFlags
	c := &cobra.Command{
		Use:     "bench",
		Short:   "Drive the buffered sink from concurrent producers",
		Example: "xlogctl bench --dir /tmp/xlog --producers 8 --records 100000 --capacity 1024 --overflow drop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, f)
		},
	}
	c.Flags().IntVar(&f.producers, "producers", 4, "concurrent producers")
	c.Flags().IntVar(&f.records, "records", 100000, "records per producer")
	c.Flags().IntVar(&f.dim, "dim", 8, "observation vector length")
	c.Flags().IntVar(&f.capacity, "capacity", 0, "queue capacity (overrides queue_capacity)")
	c.Flags().StringVar(&f.overflow, "overflow", "", "block or drop (overrides overflow)")
	return c
}

func runBench(cmd *cobra.Command, f benchFlags) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	if f.capacity > 0 {
		e.cfg.QueueCapacity = f.capacity
	}
	if f.overflow != "" {
		e.cfg.Overflow = f.overflow
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	p, err := e.openPipeline([]string{runTag(), "bench"})
	if err != nil {
		return err
	}
	firstChunk := p.writer.ChunkID()

	reg := prometheus.NewRegistry()
	if err := reg.Register(ingest.NewCollector(p.sink, prometheus.Labels{"prefix": e.cfg.Prefix})); err != nil {
		_ = p.sink.Close()
		return err
	}

	ctx := cmd.Context()
	base := time.Now().UnixNano()
	start := time.Now()

	var wg sync.WaitGroup
	errs := make(chan error, f.producers)
	for pi := 0; pi < f.producers; pi++ {
		wg.Add(1)
		go func(pi int) {
			defer wg.Done()
			for i := 0; i < f.records; i++ {
				x := syntheticExperience(i, f.dim, base+int64(pi*f.records+i))
				if err := p.sink.Append(ctx, x); err != nil {
					errs <- fmt.Errorf("producer %d: %w", pi, err)
					return
				}
			}
		}(pi)
	}
	wg.Wait()
	produced := time.Since(start)
	close(errs)

	closeErr := p.sink.Close()
	drained := time.Since(start)

	for err := range errs {
		e.log.Warn("producer stopped early", zap.Error(err))
	}

	st := p.sink.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "policy:    %s, capacity %d\n", p.sink.Overflow(), p.sink.Cap())
	fmt.Fprintf(out, "accepted:  %d\n", st.Accepted)
	fmt.Fprintf(out, "dropped:   %d\n", st.Dropped)
	fmt.Fprintf(out, "written:   %d\n", st.Written)
	fmt.Fprintf(out, "failed:    %d\n", st.Failed)
	fmt.Fprintf(out, "unflushed: %d\n", st.Unflushed)
	fmt.Fprintf(out, "produce:   %s (%.0f rec/s)\n", produced.Round(time.Millisecond), float64(st.Accepted+st.Dropped)/produced.Seconds())
	fmt.Fprintf(out, "drain:     %s (%.0f rec/s written)\n", drained.Round(time.Millisecond), float64(st.Written)/drained.Seconds())
	fmt.Fprintf(out, "chunks:    %05d..%05d\n", firstChunk, p.writer.ChunkID())
	if size, err := dirSize(e.cfg.DataDir, e.cfg.Prefix, firstChunk, p.writer.ChunkID()); err == nil {
		fmt.Fprintf(out, "on disk:   %s\n", bytefmt.ByteSize(uint64(size)))
	}

	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				v = m.GetGauge().GetValue()
			}
			fmt.Fprintf(out, "%s %g\n", mf.GetName(), v)
		}
	}
	return closeErr
}
