package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tarcisiozf/dslot/engine"
	"github.com/tarcisiozf/dslot/slots"
)

func formatSlot(slot slots.Slot) string {
	if slot.IsNone() {
		return "none"
	}
	return slot.String()
}

// printSlots writes one "id<TAB>slot[<TAB>shard]" line per identifier.
func printSlots(w io.Writer, alg slots.Algorithm, n int, table *slots.BandTable, ids []string) error {
	withShard := alg.Equal(slots.CRC16) && table != nil && table.Slots() == n
	for _, id := range ids {
		slot, err := alg.Assign(id, n)
		if err != nil {
			return err
		}
		if withShard {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, formatSlot(slot), table.ShardFor(slot))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", id, formatSlot(slot))
	}
	return nil
}

func newCRC16Cmd(opts *globalOptions) *cobra.Command {
	n := slots.RedisSlots
	cmd := &cobra.Command{
		Use:   "crc16 <id>...",
		Short: "Print the zero-based cluster slot and shard of each identifier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.bands()
			if err != nil {
				return err
			}
			return printSlots(cmd.OutOrStdout(), slots.CRC16, n, table, args)
		},
	}
	cmd.Flags().IntVarP(&n, "slots", "n", n, "Number of slots")
	return cmd
}

func newSHA256Cmd(_ *globalOptions) *cobra.Command {
	n := slots.FleetSlots
	cmd := &cobra.Command{
		Use:   "sha256 <id>...",
		Short: "Print the one-based fleet slot of each identifier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSlots(cmd.OutOrStdout(), slots.SHA256, n, nil, args)
		},
	}
	cmd.Flags().IntVarP(&n, "slots", "n", n, "Number of slots")
	return cmd
}

func newSlotCmd(opts *globalOptions) *cobra.Command {
	var (
		algorithm string
		n         int
	)
	cmd := &cobra.Command{
		Use:   "slot <id>...",
		Short: "Print the slot of each identifier with any algorithm",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := engine.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			if n == 0 {
				n = alg.DefaultSlots()
			}
			table, err := opts.bands()
			if err != nil {
				return err
			}
			return printSlots(cmd.OutOrStdout(), alg, n, table, args)
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", slots.CRC16.String(), "crc16, sha256 or xxhash")
	cmd.Flags().IntVarP(&n, "slots", "n", 0, "Number of slots (default: per algorithm)")
	return cmd
}

func newShardCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shard <slot>...",
		Short: "Print the shard owning each cluster slot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.bands()
			if err != nil {
				return err
			}
			for _, value := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", value, table.ShardForValue(value))
			}
			return nil
		},
	}
}
