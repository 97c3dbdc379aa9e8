package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/internal/batch"
	"github.com/tarcisiozf/dslot/internal/stats"
	"github.com/tarcisiozf/dslot/report"
	"github.com/tarcisiozf/dslot/slots"
)

type distributeOptions struct {
	algorithm    string
	slots        int
	chunkSize    int
	out          string
	summaryOut   string
	showUnused   bool
	showProgress bool
}

func newDistributeCmd(opts *globalOptions) *cobra.Command {
	d := &distributeOptions{}
	cmd := &cobra.Command{
		Use:   "distribute <file>",
		Short: "Assign every identifier of a file and report how they spread over the slots",
		Long: `Reads one identifier per line (plain, .gz or .zst), assigns each one a slot
and prints the distribution. Results can be exported as CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()
			return runDistribute(ctx, cmd, opts, d, args[0])
		},
	}
	cmd.Flags().StringVarP(&d.algorithm, "algorithm", "a", slots.SHA256.String(), "crc16, sha256 or xxhash")
	cmd.Flags().IntVarP(&d.slots, "slots", "n", 0, "Number of slots (default: per algorithm)")
	cmd.Flags().IntVar(&d.chunkSize, "chunk-size", batch.DefaultChunkSize, "Identifiers per batch chunk")
	cmd.Flags().StringVarP(&d.out, "out", "o", "", "Write assignments as CSV (.gz/.zst compress)")
	cmd.Flags().StringVar(&d.summaryOut, "summary", "", "Write per slot statistics as CSV")
	cmd.Flags().BoolVar(&d.showUnused, "unused", false, "List unused slots")
	cmd.Flags().BoolVar(&d.showProgress, "progress", false, "Print progress to stderr")
	return cmd
}

func runDistribute(ctx context.Context, cmd *cobra.Command, opts *globalOptions, d *distributeOptions, path string) error {
	alg, err := engine.ParseAlgorithm(d.algorithm)
	if err != nil {
		return err
	}
	n := d.slots
	if n == 0 {
		n = alg.DefaultSlots()
	}

	in, err := report.OpenInput(path)
	if err != nil {
		return err
	}
	ids, err := report.ReadIdentifiers(in)
	_ = in.Close()
	if err != nil {
		return err
	}

	options := []batch.Option{batch.WithChunkSize(d.chunkSize), batch.WithLogger(opts.logger())}
	if d.showProgress {
		stderr := cmd.ErrOrStderr()
		options = append(options, batch.WithProgress(func(done, total int) {
			fmt.Fprintf(stderr, "\rprocessed %d/%d", done, total)
			if done == total {
				fmt.Fprintln(stderr)
			}
		}))
	}
	assignments, err := batch.NewProcessor(options...).Run(ctx, alg, n, ids)
	if err != nil {
		return err
	}
	summary := stats.Distribution(assignments, alg, n)

	table, err := opts.bands()
	if err != nil {
		return err
	}
	var shard func(slots.Slot) string
	if alg.Equal(slots.CRC16) && table.Slots() == n {
		shard = table.ShardFor
	}

	printSummary(cmd.OutOrStdout(), summary, d.showUnused)
	if shard != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Shards:")
		for _, sc := range summary.ShardCounts(table) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", sc.Shard, sc.Count)
		}
	}

	if d.out != "" {
		if err := writeTo(d.out, func(w io.Writer) error {
			return report.WriteAssignmentsCSV(w, assignments, shard)
		}); err != nil {
			return err
		}
	}
	if d.summaryOut != "" {
		if err := writeTo(d.summaryOut, func(w io.Writer) error {
			return report.WriteSummaryCSV(w, summary)
		}); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(w io.Writer, s stats.Summary, showUnused bool) {
	fmt.Fprintf(w, "Algorithm: %s (%d slots)\n", s.Algorithm, s.Slots)
	fmt.Fprintf(w, "Identifiers: %d (assigned %d, missing %d)\n", s.Total, s.Assigned, s.Missing)
	fmt.Fprintf(w, "Used slots: %d, unused: %d\n", s.UsedSlots, len(s.UnusedSlots))
	fmt.Fprintf(w, "Per slot: min %d, max %d, mean %.2f, stddev %.2f\n", s.Min, s.Max, s.Mean, s.StdDev)
	if showUnused && len(s.UnusedSlots) > 0 {
		fmt.Fprintf(w, "Unused: %v\n", s.UnusedSlots)
	}
}

func writeTo(path string, write func(w io.Writer) error) (retErr error) {
	out, err := report.CreateOutput(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	return write(out)
}
