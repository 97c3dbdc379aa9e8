package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tarcisiozf/dslot/report"
)

func newReportCmd(opts *globalOptions) *cobra.Command {
	var (
		column    string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "report <workbook.xlsx>",
		Short: "Add Redis slot and node columns to a timeout workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.bands()
			if err != nil {
				return err
			}
			result, err := report.AnalyzeWorkbook(args[0],
				report.WithBands(table),
				report.WithColumn(column),
				report.WithOutputDir(outputDir),
				report.WithLogger(opts.logger()),
			)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, name := range result.Overwritten {
				fmt.Fprintf(w, "Existing column %q was overwritten\n", name)
			}
			fmt.Fprintf(w, "Input: %s\n", result.Input)
			fmt.Fprintf(w, "Output: %s\n", result.Output)
			fmt.Fprintf(w, "Rows: %d (missing %s: %d)\n", result.Rows, column, result.Missing)
			fmt.Fprintln(w, "Shards:")
			for _, sc := range result.Shards {
				fmt.Fprintf(w, "  %s: %d\n", sc.Shard, sc.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", report.DefaultColumn, "Header of the identifier column")
	cmd.Flags().StringVar(&outputDir, "out-dir", "", "Directory of the result workbook (default: next to the input)")
	return cmd
}
