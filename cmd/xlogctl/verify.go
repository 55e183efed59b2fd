package main

import (
	"fmt"
	"text/tabwriter"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"expstore/internal/chunk"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "verify",
		Short:   "Scan every chunk of a prefix and report torn tails",
		Example: "xlogctl verify --dir /tmp/xlog --prefix exp",
		RunE:    runVerify,
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ids, err := chunk.ScanIDs(e.cfg.DataDir, e.cfg.Prefix)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no chunks with prefix %q in %s", e.cfg.Prefix, e.cfg.DataDir)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHUNK\tRECORDS\tINDEXED\tVALID\tSIZE\tSTATE")

	var failures error
	torn := 0
	for _, id := range ids {
		rep := chunk.Verify(chunk.DataPath(e.cfg.DataDir, e.cfg.Prefix, id))
		indexed, ierr := indexCount(chunk.IndexPath(e.cfg.DataDir, e.cfg.Prefix, id))

		state := "ok"
		switch {
		case rep.Err != nil:
			state = "error: " + rep.Err.Error()
			failures = multierr.Append(failures, fmt.Errorf("chunk %d: %w", id, rep.Err))
		case ierr != nil:
			state = "index error: " + ierr.Error()
			failures = multierr.Append(failures, fmt.Errorf("chunk %d index: %w", id, ierr))
		case rep.Torn:
			state = fmt.Sprintf("torn at %d", rep.ValidBytes)
			torn++
		case indexed != rep.Records:
			state = "index/data count differ"
		}
		fmt.Fprintf(tw, "%05d\t%d\t%d\t%s\t%s\t%s\n", id, rep.Records, indexed,
			bytefmt.ByteSize(uint64(max(rep.ValidBytes, 0))), bytefmt.ByteSize(uint64(max(rep.FileBytes, 0))), state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d chunks, %d torn\n", len(ids), torn)
	return failures
}

func indexCount(path string) (int, error) {
	r, err := chunk.OpenIndex(path)
	if err != nil {
		return 0, err
	}
	n := r.Count()
	return n, r.Close()
}
