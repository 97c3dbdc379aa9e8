package main

import (
	"crypto/rand"
	"fmt"
	"io"
	mrand "math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// sampleIDs returns count device identifiers in the "{UPPER-UUID}" form.
// A non zero seed makes the output reproducible.
func sampleIDs(count int, seed int64) ([]string, error) {
	var source io.Reader = rand.Reader
	if seed != 0 {
		source = mrand.New(mrand.NewSource(seed))
	}
	ids := make([]string, 0, count)
	for range count {
		id, err := uuid.NewRandomFromReader(source)
		if err != nil {
			return nil, fmt.Errorf("failed to generate identifier: %w", err)
		}
		ids = append(ids, "{"+strings.ToUpper(id.String())+"}")
	}
	return ids, nil
}

func newSampleCmd() *cobra.Command {
	var (
		count int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate random device identifiers, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := sampleIDs(count, seed)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "c", 1000, "Number of identifiers")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for reproducible output")
	return cmd
}
