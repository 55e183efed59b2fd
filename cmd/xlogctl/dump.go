package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expstore/internal/chunk"
)

type dumpFlags struct {
	index string
	from  int
	count int
}

func newDumpCmd() *cobra.Command {
	var f dumpFlags
	c := &cobra.Command{
		Use:     "dump",
		Short:   "Print the entries of an index file",
		Example: "xlogctl dump --index /tmp/xlog/exp-00000.fidx --from 100 --count 20",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDump(cmd, f)
		},
	}
	c.Flags().StringVar(&f.index, "index", "", "index file to read")
	c.Flags().IntVar(&f.from, "from", 0, "first ordinal")
	c.Flags().IntVar(&f.count, "count", -1, "number of entries, -1 for all")
	_ = c.MarkFlagRequired("index")
	return c
}

func runDump(cmd *cobra.Command, f dumpFlags) error {
	r, err := chunk.OpenIndex(f.index)
	if err != nil {
		return err
	}
	defer r.Close()

	n := f.count
	if n < 0 {
		n = r.Count()
	}
	entries, err := r.Range(f.from, n)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tOFFSET\tTICKS\tREWARD\tTERMINAL\tCHUNK\tEPISODE")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%g\t%t\t%d\t%d\n",
			f.from+i, e.ID, e.Offset, e.Ticks, e.Reward, e.Terminal(), e.ChunkID, e.Episode)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(entries), r.Count())
	return nil
}
